package broker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/juniorbasecompany/turna/domain"
)

// RedisQueue implements Broker on a Redis list: LPUSH to publish, BRPOP
// to consume. Matches the at-least-once contract — a crashed consumer
// loses nothing because the Job row stays PENDING for the reconciler.
type RedisQueue struct {
	c     *redis.Client
	queue string
	log   zerolog.Logger
}

// NewRedisQueue creates a Redis-backed queue from a redis URL. Returns an
// error if the URL cannot be parsed.
func NewRedisQueue(redisURL, queue string, log zerolog.Logger) (*RedisQueue, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, domain.Wrap(domain.KindBadRequest, "invalid REDIS_URL", err)
	}
	return &RedisQueue{
		c:     redis.NewClient(opt),
		queue: queue,
		log:   log.With().Str("component", "redis-queue").Logger(),
	}, nil
}

func (q *RedisQueue) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return q.c.Ping(ctx).Err()
}

func (q *RedisQueue) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return domain.Wrap(domain.KindInternal, "encode queue message", err)
	}
	if err := q.c.LPush(ctx, q.queue, payload).Err(); err != nil {
		return domain.Wrap(domain.KindUnavailable, "queue publish failed", err)
	}
	return nil
}

func (q *RedisQueue) Consume(ctx context.Context) (Message, error) {
	for {
		res, err := q.c.BRPop(ctx, 5*time.Second, q.queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// Poll timeout, nothing queued.
				if ctx.Err() != nil {
					return Message{}, ctx.Err()
				}
				continue
			}
			if ctx.Err() != nil {
				return Message{}, ctx.Err()
			}
			return Message{}, domain.Wrap(domain.KindUnavailable, "queue consume failed", err)
		}
		// BRPop returns [key, value].
		if len(res) != 2 {
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			q.log.Warn().Err(err).Str("payload", res[1]).Msg("dropping malformed queue message")
			continue
		}
		return msg, nil
	}
}

func (q *RedisQueue) Close() error { return q.c.Close() }
