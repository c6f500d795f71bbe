package counter

import (
	"context"

	"clinic-queue/internal/apperr"

	"github.com/redis/go-redis/v9"
)

// Redis allocates with INCR, which is atomic on the server. The first
// INCR of a missing key returns 1.
type Redis struct {
	client redis.Cmdable
	prefix string
}

func NewRedis(client redis.Cmdable) *Redis {
	return &Redis{client: client, prefix: "queue:counter:"}
}

func (r *Redis) Allocate(ctx context.Context, name string) (int64, error) {
	if err := checkName(name); err != nil {
		return 0, err
	}

	n, err := r.client.Incr(ctx, r.prefix+name).Result()
	if err != nil {
		return 0, apperr.Transient("allocate counter", err)
	}
	return n, nil
}
