package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DefaultRelayChannel - Redis channel shared by every server instance.
const DefaultRelayChannel = "clinic:changes"

// Notifier - anything writers can tell about committed changes.
type Notifier interface {
	Notify(topics ...Topic)
}

type relayMessage struct {
	Origin string  `json:"origin"`
	Topics []Topic `json:"topics"`
}

// Relay carries change notifications between server instances over Redis
// Pub/Sub, so a write on one instance refreshes the readers connected to
// all of them. Only topics travel; every instance re-reads the store.
type Relay struct {
	client  *redis.Client
	local   Notifier
	channel string
	origin  string
	ready   chan struct{}
}

func NewRelay(client *redis.Client, local Notifier, channel string) *Relay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	return &Relay{
		client:  client,
		local:   local,
		channel: channel,
		origin:  uuid.NewString(),
		ready:   make(chan struct{}),
	}
}

// Notify informs the local broadcaster and publishes to the other
// instances in the background, so a slow Redis never holds up the caller.
// A publish failure is logged; local readers are still served.
func (r *Relay) Notify(topics ...Topic) {
	r.local.Notify(topics...)

	payload, err := json.Marshal(relayMessage{Origin: r.origin, Topics: topics})
	if err != nil {
		log.Error().Str("component", "relay").Err(err).Msg("encode change")
		return
	}
	go r.publish(payload)
}

func (r *Relay) publish(payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		log.Warn().Str("component", "relay").Err(err).Msg("publish change failed")
	}
}

// Ready is closed once Run holds the subscription.
func (r *Relay) Ready() <-chan struct{} {
	return r.ready
}

// Run forwards changes made by other instances to the local broadcaster
// until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	close(r.ready)
	log.Info().Str("component", "relay").Str("channel", r.channel).Str("origin", r.origin).
		Msg("listening for changes from other instances")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var m relayMessage
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				log.Warn().Str("component", "relay").Err(err).Msg("ignoring malformed change")
				continue
			}
			if m.Origin == r.origin || len(m.Topics) == 0 {
				continue
			}
			r.local.Notify(m.Topics...)
		}
	}
}
