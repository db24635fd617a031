// Package redislock provides the distributed variant of the per-participant
// redemption lock, for deployments running more than one check-in service
// instance against shared storage. Single-instance deployments use the
// in-process locker in the checkin package.
package redislock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"ms-checkin/internal/checkin"
)

const keyPrefix = "participant_lock:"

// Locker implements checkin.ParticipantLocker on a Redis SetNX lease. The
// TTL bounds how long a crashed holder can block a participant; the wait
// bounds how long an acquirer polls before reporting Busy.
type Locker struct {
	Client *redis.Client
	TTL    time.Duration
	Wait   time.Duration
	Poll   time.Duration
}

func New(client *redis.Client) *Locker {
	return &Locker{
		Client: client,
		TTL:    10 * time.Second,
		Wait:   2 * time.Second,
		Poll:   50 * time.Millisecond,
	}
}

func (l *Locker) Acquire(ctx context.Context, participantID string) (func(), error) {
	key := keyPrefix + participantID
	owner := uuid.New().String()

	deadline := time.Now().Add(l.Wait)
	for {
		ok, err := l.Client.SetNX(ctx, key, owner, l.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock error: %w", err)
		}
		if ok {
			return func() { l.release(key, owner) }, nil
		}
		if time.Now().After(deadline) {
			return nil, checkin.ErrBusy
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.Poll):
		}
	}
}

// release deletes the key only if this acquirer still owns it, so an
// expired lease taken over by another station is never clobbered.
func (l *Locker) release(key, owner string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	val, err := l.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return // lease already expired
	}
	if err != nil {
		return
	}
	if val == owner {
		_, _ = l.Client.Del(ctx, key).Result()
	}
}
