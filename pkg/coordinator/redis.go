/*
Copyright 2025 Mirantis IT.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/


package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
)

const (
	defaultLockTTL      = 30 * time.Second
	defaultPollInterval = 500 * time.Millisecond
	lockKeyPrefix       = "dspace:lock:"
)

// compare-and-delete and compare-and-expire, so only token owner touches the key
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

type RedisOptions struct {
	URL          string
	TTL          time.Duration
	PollInterval time.Duration
}

// RedisCoordinator provides locks shared by all processes using same redis.
type RedisCoordinator struct {
	client       redis.UniversalClient
	ttl          time.Duration
	pollInterval time.Duration
	log          zerolog.Logger
}

func NewRedisCoordinator(log zerolog.Logger, opts RedisOptions) (*RedisCoordinator, error) {
	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, dspcommon.WrapError(dspcommon.ErrInvalid, err, "invalid coordination url")
	}
	return NewRedisCoordinatorWithClient(log, redis.NewClient(redisOpts), opts), nil
}

func NewRedisCoordinatorWithClient(log zerolog.Logger, client redis.UniversalClient, opts RedisOptions) *RedisCoordinator {
	c := &RedisCoordinator{client: client, ttl: opts.TTL, pollInterval: opts.PollInterval, log: log}
	if c.ttl <= 0 {
		c.ttl = defaultLockTTL
	}
	if c.pollInterval <= 0 {
		c.pollInterval = defaultPollInterval
	}
	return c
}

func (c *RedisCoordinator) GetLock(name string) Lock {
	return &redisLock{coordinator: c, name: name, key: lockKeyPrefix + name}
}

func (c *RedisCoordinator) Close() error {
	return c.client.Close()
}

type redisLock struct {
	coordinator *RedisCoordinator
	name        string
	key         string
	mu          sync.Mutex
	token       string
	stopRefresh context.CancelFunc
	refreshDone chan struct{}
}

func (l *redisLock) Name() string {
	return l.name
}

func (l *redisLock) tryAcquire(ctx context.Context, token string) (bool, error) {
	ok, err := l.coordinator.client.SetNX(ctx, l.key, token, l.coordinator.ttl).Result()
	if err != nil {
		return false, dspcommon.WrapError(dspcommon.ErrConnect, err, "failed to acquire lock '%s'", l.name)
	}
	return ok, nil
}

func (l *redisLock) Acquire(ctx context.Context, blocking bool) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.token != "" {
		return false, dspcommon.NewError(dspcommon.ErrProgramming, "lock '%s' is already held by this owner", l.name)
	}
	token := uuid.NewString()
	for {
		ok, err := l.tryAcquire(ctx, token)
		if err != nil {
			return false, err
		}
		if ok {
			l.token = token
			l.startRefresh()
			return true, nil
		}
		if !blocking {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, dspcommon.WrapError(dspcommon.ErrTimeout, ctx.Err(), "failed to acquire lock '%s'", l.name)
		case <-time.After(l.coordinator.pollInterval):
		}
	}
}

// startRefresh keeps key alive while lock is held.
func (l *redisLock) startRefresh() {
	ctx, cancel := context.WithCancel(context.Background())
	l.stopRefresh = cancel
	l.refreshDone = make(chan struct{})
	token := l.token
	go func() {
		defer close(l.refreshDone)
		ticker := time.NewTicker(l.coordinator.ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				res, err := refreshScript.Run(ctx, l.coordinator.client, []string{l.key}, token, l.coordinator.ttl.Milliseconds()).Int()
				if err != nil && !errors.Is(err, context.Canceled) {
					l.coordinator.log.Error().Err(err).Msgf("failed to refresh lock '%s'", l.name)
				} else if err == nil && res == 0 {
					l.coordinator.log.Warn().Msgf("lock '%s' was lost", l.name)
					return
				}
			}
		}
	}()
}

func (l *redisLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.token == "" {
		return dspcommon.NewError(dspcommon.ErrProgramming, "lock '%s' is not held", l.name)
	}
	l.stopRefresh()
	<-l.refreshDone
	token := l.token
	l.token = ""
	if err := releaseScript.Run(ctx, l.coordinator.client, []string{l.key}, token).Err(); err != nil {
		return dspcommon.WrapError(dspcommon.ErrConnect, err, "failed to release lock '%s'", l.name)
	}
	return nil
}
