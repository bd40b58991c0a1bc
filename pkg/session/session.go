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
	"strings"
	"time"

	"github.com/rs/zerolog"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/config"
)

const (
	// CookieName carries session token of dashboard users.
	CookieName  = "dspace_session"
	TokenLength = 32

	defaultTTL = 24 * time.Hour
)

// Store keeps user sessions by opaque token.
type Store interface {
	// Get returns nil data for unknown or expired token.
	Get(ctx context.Context, token string) (map[string]any, error)
	// Save stores data under token, fresh token is allocated when token
	// is empty or unknown.
	Save(ctx context.Context, token string, data map[string]any) (string, error)
	Delete(ctx context.Context, token string) error
}

// ValidToken reports whether token could be produced by dspcommon.NewToken.
func ValidToken(token string) bool {
	if len(token) != TokenLength {
		return false
	}
	for _, r := range token {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}

// New returns redis backed store when session url or sentinels are
// configured and process local store otherwise.
func New(log zerolog.Logger, params config.SessionParams) (Store, error) {
	switch {
	case params.SentinelMaster != "" && len(params.SentinelAddrs) > 0:
		log.Info().Msgf("using redis sentinel session store, master '%s'", params.SentinelMaster)
		return NewSentinelStore(params.SentinelMaster, params.SentinelAddrs, defaultTTL), nil
	case params.URL != "":
		log.Info().Msg("using redis session store")
		return NewRedisStore(params.URL, defaultTTL)
	}
	log.Warn().Msg("session store is not configured, sessions are kept in memory")
	return NewMemoryStore(defaultTTL), nil
}

func invalidToken(token string) error {
	return dspcommon.NewError(dspcommon.ErrInvalid, "session token '%s' is malformed", token)
}
