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
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/db"
	"github.com/Mirantis/dspace/pkg/objects"
	"github.com/Mirantis/dspace/pkg/session"
	unitinputs "github.com/Mirantis/dspace/test/unit/inputs"
)

type recordingHub struct {
	messages []Message
}

func (r *recordingHub) Broadcast(_ string, message Message) {
	r.messages = append(r.messages, message)
}

func newAlertStore(t *testing.T) (db.Store, *objects.Node, *objects.Osd) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	node := &objects.Node{ClusterID: unitinputs.ClusterID, Hostname: "node-1", Status: objects.NodeStatusActive}
	require.NoError(t, store.Nodes().Create(ctx, node))
	osd := &objects.Osd{ClusterID: unitinputs.ClusterID, NodeID: node.ID, OsdID: objects.StringPtr("3"), Status: objects.OsdStatusActive}
	require.NoError(t, store.Osds().Create(ctx, osd))
	return store, node, osd
}

func osdOffline(osd *objects.Osd) objects.Alert {
	return objects.Alert{
		ClusterID:    unitinputs.ClusterID,
		ResourceType: objects.ResourceOsd,
		ResourceID:   strconv.FormatInt(osd.ID, 10),
		ResourceName: "osd.3",
		Level:        objects.AlertWarn,
		Category:     objects.AlertOsdOffline,
		Message:      "osd.3 is offline",
	}
}

func TestBridgeEmit(t *testing.T) {
	ctx := context.Background()
	store, node, osd := newAlertStore(t)
	hub := &recordingHub{}
	bridge := NewBridge(dspcommon.InitLogger(true), store, hub)

	tests := []struct {
		name       string
		nodeStatus objects.NodeStatus
		alert      objects.Alert
		emitted    bool
	}{
		{name: "active node", nodeStatus: objects.NodeStatusActive, alert: osdOffline(osd), emitted: true},
		{name: "deploying node", nodeStatus: objects.NodeStatusDeploying, alert: osdOffline(osd)},
		{name: "creating node", nodeStatus: objects.NodeStatusCreating, alert: osdOffline(osd)},
		{
			name:       "cluster alert during deployment",
			nodeStatus: objects.NodeStatusDeploying,
			alert: objects.Alert{
				ClusterID: unitinputs.ClusterID, ResourceType: objects.ResourceCluster, ResourceID: unitinputs.ClusterID,
				Level: objects.AlertError, Category: objects.AlertCephDisconnect, Message: "could not connect",
			},
			emitted: true,
		},
		{
			name:       "unknown resource",
			nodeStatus: objects.NodeStatusDeleting,
			alert: objects.Alert{
				ClusterID: unitinputs.ClusterID, ResourceType: objects.ResourceService, ResourceID: "42",
				Level: objects.AlertError, Category: objects.AlertServiceStatus, Message: "service is gone",
			},
			emitted: true,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := store.Nodes().CompareAndUpdate(ctx, node.ID, nil, func(n *objects.Node) { n.Status = test.nodeStatus })
			require.NoError(t, err)
			before := len(hub.messages)

			require.NoError(t, bridge.Emit(ctx, test.alert))
			logs, err := store.AlertLogs().List(ctx, func(l *objects.AlertLog) bool { return l.Message == test.alert.Message })
			require.NoError(t, err)
			if !test.emitted {
				assert.Equal(t, before, len(hub.messages))
				assert.Empty(t, logs)
				return
			}
			require.Len(t, hub.messages, before+1)
			require.NotEmpty(t, logs)
			last := hub.messages[len(hub.messages)-1]
			assert.Equal(t, MessageTypeAlert, last.Type)
			assert.Equal(t, test.alert.Category, last.Data.Category)
			assert.Equal(t, logs[len(logs)-1].ID, last.Data.ID)
		})
	}
}

func dialHub(t *testing.T, server *httptest.Server, query, token string) (*websocket.Conn, *http.Response, error) {
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws" + query
	header := http.Header{}
	if token != "" {
		header.Set("Cookie", session.CookieName+"="+token)
	}
	return websocket.DefaultDialer.Dial(url, header)
}

func TestHub(t *testing.T) {
	ctx := context.Background()
	log := dspcommon.InitLogger(true)
	sessions := session.NewMemoryStore(time.Hour)
	token, err := sessions.Save(ctx, "", map[string]any{"user": "admin"})
	require.NoError(t, err)
	hub := NewHub(log, sessions)
	server := httptest.NewServer(hub)
	defer server.Close()
	defer hub.Close()

	_, resp, err := dialHub(t, server, "", token)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_, resp, err = dialHub(t, server, "?cluster_id="+unitinputs.ClusterID, "")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_, resp, err = dialHub(t, server, "?cluster_id="+unitinputs.ClusterID, dspcommon.NewToken())
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := dialHub(t, server, "?cluster_id="+unitinputs.ClusterID, token)
	require.NoError(t, err)
	other, _, err := dialHub(t, server, "?cluster_id=other", token)
	require.NoError(t, err)
	defer other.Close()
	assert.Eventually(t, func() bool {
		return hub.Subscribers(unitinputs.ClusterID) == 1 && hub.Subscribers("other") == 1
	}, time.Second, 10*time.Millisecond)

	store, _, osd := newAlertStore(t)
	bridge := NewBridge(log, store, hub)
	require.NoError(t, bridge.Emit(ctx, osdOffline(osd)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MessageTypeAlert, msg.Type)
	assert.Equal(t, objects.AlertOsdOffline, msg.Data.Category)
	assert.Equal(t, "osd.3 is offline", msg.Data.Message)

	require.NoError(t, other.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err = other.ReadMessage()
	assert.Error(t, err)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Subscribers(unitinputs.ClusterID) == 0 }, time.Second, 10*time.Millisecond)
}
