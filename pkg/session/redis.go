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

package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
)

const (
	keyPrefix = "dspace:session:"
	// field written by current admin
	dataField = "session"
	// misspelled field written by older admins, read only
	legacyDataField = "sessoin"
)

// RedisStore keeps every session in a hash with json encoded data field.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisStore(url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, dspcommon.WrapError(dspcommon.ErrInvalid, err, "invalid session url")
	}
	return NewRedisStoreWithClient(redis.NewClient(opts), ttl), nil
}

// NewSentinelStore connects to redis master through sentinels and follows
// failovers.
func NewSentinelStore(master string, sentinels []string, ttl time.Duration) *RedisStore {
	client := redis.NewFailoverClient(&redis.FailoverOptions{
		MasterName:    master,
		SentinelAddrs: sentinels,
	})
	return NewRedisStoreWithClient(client, ttl)
}

func NewRedisStoreWithClient(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func sessionKey(token string) string {
	return keyPrefix + token
}

// decodeFields picks first present data field of HMGET reply.
func decodeFields(values []any) (map[string]any, error) {
	for _, value := range values {
		raw, ok := value.(string)
		if !ok || raw == "" {
			continue
		}
		data := map[string]any{}
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return nil, errors.Wrap(err, "failed to decode session data")
		}
		return data, nil
	}
	return nil, nil
}

func (r *RedisStore) Get(ctx context.Context, token string) (map[string]any, error) {
	if !ValidToken(token) {
		return nil, nil
	}
	values, err := r.client.HMGet(ctx, sessionKey(token), dataField, legacyDataField).Result()
	if err != nil {
		return nil, dspcommon.WrapError(dspcommon.ErrConnect, err, "failed to read session")
	}
	return decodeFields(values)
}

func (r *RedisStore) Save(ctx context.Context, token string, data map[string]any) (string, error) {
	if token != "" && !ValidToken(token) {
		return "", invalidToken(token)
	}
	if token != "" {
		exists, err := r.client.Exists(ctx, sessionKey(token)).Result()
		if err != nil {
			return "", dspcommon.WrapError(dspcommon.ErrConnect, err, "failed to check session")
		}
		if exists == 0 {
			token = ""
		}
	}
	if token == "" {
		token = dspcommon.NewToken()
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode session data")
	}
	key := sessionKey(token)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, dataField, string(raw))
		pipe.HDel(ctx, key, legacyDataField)
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return "", dspcommon.WrapError(dspcommon.ErrConnect, err, "failed to save session")
	}
	return token, nil
}

func (r *RedisStore) Delete(ctx context.Context, token string) error {
	if err := r.client.Del(ctx, sessionKey(token)).Err(); err != nil {
		return dspcommon.WrapError(dspcommon.ErrConnect, err, "failed to delete session")
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
