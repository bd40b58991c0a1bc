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


package rpc

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/db"
	"github.com/Mirantis/dspace/pkg/objects"
)

// node lookup retry policy used on agent start
var (
	nodeLookupInitialInterval = 10 * time.Second
	nodeLookupAttempts        = 5
)

// RegisterService inserts or updates endpoint row of local service.
func RegisterService(ctx context.Context, store db.Store, svc objects.RPCService) (*objects.RPCService, error) {
	rows, err := store.RPCServices().List(ctx, func(s *objects.RPCService) bool {
		return s.ServiceName == svc.ServiceName && s.ClusterID == svc.ClusterID && s.NodeID == svc.NodeID
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list '%s' services", svc.ServiceName)
	}
	if len(rows) == 0 {
		row := svc
		if err := store.RPCServices().Create(ctx, &row); err != nil {
			return nil, errors.Wrapf(err, "failed to register '%s' service", svc.ServiceName)
		}
		return &row, nil
	}
	row := rows[0]
	row.Hostname = svc.Hostname
	row.Endpoint = svc.Endpoint
	if err := store.RPCServices().Update(ctx, row); err != nil {
		return nil, errors.Wrapf(err, "failed to update '%s' service", svc.ServiceName)
	}
	return row, nil
}

// AgentResolver finds node agents through registered endpoints.
type AgentResolver struct {
	store  db.Store
	caller Caller
}

func NewAgentResolver(store db.Store, caller Caller) *AgentResolver {
	return &AgentResolver{store: store, caller: caller}
}

func (r *AgentResolver) ForNode(ctx context.Context, node *objects.Node) (*AgentClient, error) {
	svc, err := db.FindRPCService(ctx, r.store, dspcommon.AgentServiceName, node.ClusterID, node.ID)
	if err != nil {
		return nil, err
	}
	return NewAgentClient(r.caller, svc.Endpoint), nil
}

// Admin returns client of cluster admin service.
func (r *AgentResolver) Admin(ctx context.Context, clusterID string) (*AdminClient, error) {
	svc, err := db.FindRPCService(ctx, r.store, dspcommon.AdminServiceName, clusterID, 0)
	if err != nil {
		return nil, err
	}
	return NewAdminClient(r.caller, svc.Endpoint), nil
}

// NodeGetter resolves node entity of agent, implemented by AdminClient.
type NodeGetter interface {
	NodeGet(ctx context.Context, hostname, ip string, port int) (*objects.Node, error)
}

// WaitNode asks admin for node entity of agent, retrying with exponential
// backoff while admin is unreachable or node is not yet created.
func WaitNode(ctx context.Context, log zerolog.Logger, admin NodeGetter, hostname, ip string, port int) (*objects.Node, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = nodeLookupInitialInterval
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxInterval = nodeLookupInitialInterval << nodeLookupAttempts
	policy.MaxElapsedTime = 0

	var node *objects.Node
	attempt := 0
	operation := func() error {
		attempt++
		var err error
		node, err = admin.NodeGet(ctx, hostname, ip, port)
		if err != nil && (dspcommon.IsAuthError(err) || dspcommon.IsKind(err, dspcommon.ErrInvalid)) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		log.Warn().Err(err).Msgf("failed to get node '%s' from admin (attempt %d/%d), retry in %v", hostname, attempt, nodeLookupAttempts, next)
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(nodeLookupAttempts-1)), ctx)
	if err := backoff.RetryNotify(operation, bo, notify); err != nil {
		return nil, errors.Wrapf(err, "failed to get node '%s' from admin after %d attempts", hostname, attempt)
	}
	log.Info().Msgf("node '%s' is registered with id %d", hostname, node.ID)
	return node, nil
}
