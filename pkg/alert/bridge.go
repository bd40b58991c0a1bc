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

package alert

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/db"
	"github.com/Mirantis/dspace/pkg/metrics"
	"github.com/Mirantis/dspace/pkg/objects"
)

// Broadcaster pushes persisted alerts to subscribers of cluster.
type Broadcaster interface {
	Broadcast(clusterID string, message Message)
}

// Message is the websocket payload.
type Message struct {
	Type string            `json:"type"`
	Data *objects.AlertLog `json:"data"`
}

const MessageTypeAlert = "alert"

// Bridge persists alerts and pushes them to websocket subscribers.
type Bridge struct {
	log zerolog.Logger
	db  db.Store
	hub Broadcaster
}

func NewBridge(log zerolog.Logger, store db.Store, hub Broadcaster) *Bridge {
	return &Bridge{log: log, db: store, hub: hub}
}

// nodeOf resolves node owning alert resource, nil for resources which
// are not bound to a node.
func (b *Bridge) nodeOf(ctx context.Context, alert objects.Alert) (*objects.Node, error) {
	id, err := strconv.ParseInt(alert.ResourceID, 10, 64)
	if err != nil {
		return nil, nil
	}
	var nodeID int64
	switch alert.ResourceType {
	case objects.ResourceNode:
		nodeID = id
	case objects.ResourceOsd:
		osd, err := b.db.Osds().Get(ctx, id)
		if err != nil {
			return nil, err
		}
		nodeID = osd.NodeID
	case objects.ResourceService:
		service, err := b.db.Services().Get(ctx, id)
		if err != nil {
			return nil, err
		}
		nodeID = service.NodeID
	case objects.ResourceRadosgw:
		rgw, err := b.db.Radosgws().Get(ctx, id)
		if err != nil {
			return nil, err
		}
		nodeID = rgw.NodeID
	default:
		return nil, nil
	}
	return b.db.Nodes().Get(ctx, nodeID)
}

// IfServiceAlert reports whether alert may be emitted. Alerts of nodes
// being created, deployed or deleted are transient and get dropped.
func (b *Bridge) IfServiceAlert(ctx context.Context, alert objects.Alert) bool {
	node, err := b.nodeOf(ctx, alert)
	if err != nil {
		if !dspcommon.IsNotFound(err) {
			b.log.Warn().Err(err).Msgf("failed to resolve node of %s '%s'", alert.ResourceType, alert.ResourceName)
		}
		return true
	}
	return node == nil || !node.InDeployment()
}

func (b *Bridge) Emit(ctx context.Context, alert objects.Alert) error {
	if !b.IfServiceAlert(ctx, alert) {
		b.log.Debug().Msgf("%s alert for %s '%s' suppressed", alert.Category, alert.ResourceType, alert.ResourceName)
		return nil
	}
	row := &objects.AlertLog{
		ClusterID:    alert.ClusterID,
		ResourceType: alert.ResourceType,
		ResourceID:   alert.ResourceID,
		ResourceName: alert.ResourceName,
		Level:        alert.Level,
		Category:     alert.Category,
		Message:      alert.Message,
	}
	if err := b.db.AlertLogs().Create(ctx, row); err != nil {
		return errors.Wrap(err, "failed to store alert")
	}
	metrics.AlertEmitted(string(alert.Level), string(alert.Category))
	b.log.Info().Msgf("%s %s alert for %s '%s': %s", alert.Level, alert.Category, alert.ResourceType, alert.ResourceName, alert.Message)
	if b.hub != nil {
		b.hub.Broadcast(alert.ClusterID, Message{Type: MessageTypeAlert, Data: row})
	}
	return nil
}
