package queue

import (
	"context"
	"strings"

	"clinic-queue/internal/apperr"
	"clinic-queue/internal/models"
	"clinic-queue/internal/realtime"
	"clinic-queue/internal/store"
)

// PanelSize - calls shown on the public panel: the current one and the
// four before it.
const PanelSize = 5

// Publisher is the only writer of the call log. It never reads or
// changes queue entries.
type Publisher struct {
	store    *store.Store
	notifier realtime.Notifier
}

func NewPublisher(s *store.Store, notifier realtime.Notifier) *Publisher {
	return &Publisher{store: s, notifier: notifier}
}

func newCallRecord(entryID, ticket, roomLabel, professionalName string) (models.CallRecord, error) {
	rec := models.CallRecord{
		EntryID:          entryID,
		Ticket:           strings.TrimSpace(ticket),
		RoomLabel:        strings.TrimSpace(roomLabel),
		ProfessionalName: strings.TrimSpace(professionalName),
	}
	if rec.Ticket == "" {
		return rec, apperr.Validation("a call needs a ticket")
	}
	if rec.RoomLabel == "" {
		return rec, apperr.Validation("a call needs a room")
	}
	return rec, nil
}

// Publish appends one call record stamped with the store time and wakes
// the panel readers.
func (p *Publisher) Publish(ctx context.Context, ticket, roomLabel, professionalName string) (models.CallRecord, error) {
	rec, err := newCallRecord("", ticket, roomLabel, professionalName)
	if err != nil {
		return rec, err
	}
	rec, err = p.store.AppendCall(ctx, rec)
	if err != nil {
		return rec, err
	}
	p.notify(realtime.TopicCalls)
	return rec, nil
}

// PublishTx appends the call for entry inside tx. The caller notifies
// after the commit.
func (p *Publisher) PublishTx(ctx context.Context, tx *store.Tx, entry models.QueueEntry) (models.CallRecord, error) {
	rec, err := newCallRecord(entry.ID, entry.Ticket, entry.RoomLabel(), entry.ProfessionalName)
	if err != nil {
		return rec, err
	}
	err = tx.AppendCall(ctx, &rec)
	return rec, err
}

// Latest returns the newest n calls, newest first, never more than
// PanelSize.
func (p *Publisher) Latest(ctx context.Context, n int) ([]models.CallRecord, error) {
	if n > PanelSize {
		n = PanelSize
	}
	return p.store.LatestCalls(ctx, n)
}

// ClearLog empties the call log. Administrative action only.
func (p *Publisher) ClearLog(ctx context.Context) (int64, error) {
	n, err := p.store.ClearCalls(ctx)
	if err != nil {
		return 0, err
	}
	p.notify(realtime.TopicCalls)
	return n, nil
}

func (p *Publisher) notify(topics ...realtime.Topic) {
	if p.notifier != nil {
		p.notifier.Notify(topics...)
	}
}
