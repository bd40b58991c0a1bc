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
	"net"

	"golang.org/x/sync/errgroup"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/rpc"
	"github.com/Mirantis/dspace/pkg/workers"
)

// Run serves agent rpc, registers node at admin and processes node events
// until context is done. Failed node registration stops the agent.
func (a *Agent) Run(ctx context.Context, admin AdminAPI) error {
	server := rpc.NewServer(a.log, a.Router())
	addr, err := server.Listen(a.opts.IP, a.opts.Port)
	if err != nil {
		return err
	}
	conn, err := listenControl(a.opts.ControlSocket)
	if err != nil {
		return err
	}
	a.log.Info().Msgf("agent of node '%s' listens on %s, control socket '%s'", a.opts.Hostname, addr, a.opts.ControlSocket)
	pool := workers.NewPool(a.log, "dsa", a.opts.TaskWorkers)
	queue := newEventQueue()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(gctx)
	})
	g.Go(func() error {
		a.readControl(conn, queue)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		queue.ShutDown()
		return closeControl(conn)
	})
	g.Go(func() error {
		node, err := rpc.WaitNode(gctx, a.log, admin, a.opts.Hostname, a.opts.IP, addr.Port)
		if err != nil {
			return err
		}
		a.setNode(node)
		watcher := &diskWatcher{agent: a, queue: queue}
		go watcher.run(gctx, pool)
		a.processEvents(gctx, admin, queue)
		return nil
	})
	err = g.Wait()
	pool.Shutdown(a.opts.ShutdownGracePeriod)
	a.log.Info().Msg("agent stopped")
	return err
}

func closeControl(conn *net.UnixConn) error {
	if err := conn.Close(); err != nil {
		return dspcommon.WrapError(dspcommon.ErrProgramming, err, "failed to close control socket")
	}
	return nil
}
