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


package agent

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"time"

	"github.com/pkg/errors"
	"k8s.io/client-go/util/workqueue"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/objects"
	"github.com/Mirantis/dspace/pkg/rpc"
	"github.com/Mirantis/dspace/pkg/workers"
)

const (
	ResourceDisk    = "disk"
	ResourceNetwork = "network"

	OpOnline  = "online"
	OpOffline = "offline"
	OpAdd     = "add"
	OpRemove  = "remove"

	maxMessageSize  = 64 << 10
	maxEventRetries = 5
)

var (
	// mock for tests
	diskCheckInterval = 30 * time.Second
	eventRetryBase    = time.Second
	eventRetryMax     = time.Minute
)

// ControlMessage is datagram accepted on agent control socket.
type ControlMessage struct {
	ResourceType string `json:"resource_type"`
	Op           string `json:"op"`
	Name         string `json:"name"`
}

func (m ControlMessage) validate() error {
	switch {
	case m.Name == "":
		return errors.New("resource name is empty")
	case m.ResourceType == ResourceDisk && (m.Op == OpOnline || m.Op == OpOffline):
		return nil
	case m.ResourceType == ResourceNetwork && (m.Op == OpAdd || m.Op == OpRemove):
		return nil
	}
	return errors.Errorf("unsupported operation '%s' for resource '%s'", m.Op, m.ResourceType)
}

// AdminAPI is admin side of agent, implemented by rpc.AdminClient.
type AdminAPI interface {
	rpc.NodeGetter
	DiskOnline(ctx context.Context, nodeID int64, disk rpc.DiskInfo) error
	DiskOffline(ctx context.Context, nodeID int64, name string) error
	NetworkAdd(ctx context.Context, nodeID int64, network objects.Network) error
	NetworkRemove(ctx context.Context, nodeID int64, network objects.Network) error
}

var _ AdminAPI = &rpc.AdminClient{}

type eventQueue = workqueue.TypedRateLimitingInterface[ControlMessage]

func newEventQueue() eventQueue {
	return workqueue.NewTypedRateLimitingQueue[ControlMessage](
		workqueue.NewTypedItemExponentialFailureRateLimiter[ControlMessage](eventRetryBase, eventRetryMax))
}

// listenControl binds datagram socket, stale socket file of previous run is replaced.
func listenControl(path string) (*net.UnixConn, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "failed to remove stale control socket '%s'", path)
	}
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to bind control socket '%s'", path)
	}
	return conn, nil
}

// readControl enqueues valid messages until socket is closed.
func (a *Agent) readControl(conn *net.UnixConn, queue eventQueue) {
	buf := make([]byte, maxMessageSize)
	for {
		n, _, err := conn.ReadFromUnix(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			a.log.Error().Err(err).Msg("failed to read control socket")
			continue
		}
		msg := ControlMessage{}
		if err := json.Unmarshal(buf[:n], &msg); err != nil {
			a.log.Error().Err(err).Msgf("dropping malformed control message '%s'", string(buf[:n]))
			continue
		}
		if err := msg.validate(); err != nil {
			a.log.Error().Err(err).Msg("dropping control message")
			continue
		}
		a.log.Debug().Msgf("control message: %s %s '%s'", msg.ResourceType, msg.Op, msg.Name)
		queue.Add(msg)
	}
}

// processEvents reports queued events to admin, transient failures are
// retried with backoff a limited number of times.
func (a *Agent) processEvents(ctx context.Context, admin AdminAPI, queue eventQueue) {
	for {
		msg, shutdown := queue.Get()
		if shutdown {
			return
		}
		err := a.dispatch(ctx, admin, msg)
		switch {
		case err == nil:
			queue.Forget(msg)
		case queue.NumRequeues(msg) < maxEventRetries-1 && dspcommon.IsRetriable(err):
			a.log.Warn().Err(err).Msgf("failed to report %s %s '%s', retrying", msg.ResourceType, msg.Op, msg.Name)
			queue.AddRateLimited(msg)
		default:
			a.log.Error().Err(err).Msgf("failed to report %s %s '%s', dropped", msg.ResourceType, msg.Op, msg.Name)
			queue.Forget(msg)
		}
		queue.Done(msg)
	}
}

func (a *Agent) dispatch(ctx context.Context, admin AdminAPI, msg ControlMessage) error {
	node := a.Node()
	if node == nil {
		return dspcommon.NewError(dspcommon.ErrNotReady, "node is not registered yet")
	}
	name := devName(msg.Name)
	switch msg.ResourceType + "/" + msg.Op {
	case ResourceDisk + "/" + OpOnline:
		disks, err := a.disk.scan(ctx)
		if err != nil {
			return err
		}
		for _, disk := range disks {
			if disk.Disk.Name == name {
				a.log.Info().Msgf("disk '%s' (%s) is online", name, sizeString(disk.Disk.Size))
				return admin.DiskOnline(ctx, node.ID, disk)
			}
		}
		return dspcommon.NewError(dspcommon.ErrNotFound, "disk '%s' not found", name)
	case ResourceDisk + "/" + OpOffline:
		a.log.Info().Msgf("disk '%s' is offline", name)
		return admin.DiskOffline(ctx, node.ID, name)
	case ResourceNetwork + "/" + OpAdd:
		networks, err := a.network.scan(ctx)
		if err != nil {
			return err
		}
		for _, network := range networks {
			if network.Name == msg.Name {
				a.log.Info().Msgf("network '%s' added", msg.Name)
				return admin.NetworkAdd(ctx, node.ID, network)
			}
		}
		return dspcommon.NewError(dspcommon.ErrNotFound, "network '%s' not found", msg.Name)
	case ResourceNetwork + "/" + OpRemove:
		a.log.Info().Msgf("network '%s' removed", msg.Name)
		return admin.NetworkRemove(ctx, node.ID, objects.Network{Name: msg.Name})
	}
	return dspcommon.NewError(dspcommon.ErrInvalid, "unsupported operation '%s' for resource '%s'", msg.Op, msg.ResourceType)
}

// diskWatcher periodically rescans disks and turns appeared or vanished
// disks into control events, first scan only remembers current disks.
type diskWatcher struct {
	agent *Agent
	queue eventQueue
	known map[string]bool
}

func (w *diskWatcher) scan(ctx context.Context) error {
	disks, err := w.agent.disk.scan(ctx)
	if err != nil {
		return err
	}
	current := map[string]bool{}
	for _, disk := range disks {
		current[disk.Disk.Name] = true
	}
	if w.known != nil {
		for name := range current {
			if !w.known[name] {
				w.queue.Add(ControlMessage{ResourceType: ResourceDisk, Op: OpOnline, Name: name})
			}
		}
		for name := range w.known {
			if !current[name] {
				w.queue.Add(ControlMessage{ResourceType: ResourceDisk, Op: OpOffline, Name: name})
			}
		}
	}
	w.known = current
	return nil
}

// run submits scans to worker pool, a scan is never started while previous
// one is still in progress.
func (w *diskWatcher) run(ctx context.Context, pool workers.Submitter) {
	ticker := time.NewTicker(diskCheckInterval)
	defer ticker.Stop()
	busy := make(chan struct{}, 1)
	for {
		select {
		case busy <- struct{}{}:
			err := pool.Submit("disk_scan", func(ctx context.Context) error {
				defer func() { <-busy }()
				return w.scan(ctx)
			})
			if err != nil {
				<-busy
				w.agent.log.Warn().Err(err).Msg("failed to submit disk scan")
			}
		default:
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
