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


package admin

import (
	"context"
	"net"

	"golang.org/x/sync/errgroup"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/controller/cron"
	"github.com/Mirantis/dspace/pkg/rpc"
)

// Addresses are endpoints admin is bound to.
type Addresses struct {
	RPC       net.Addr
	Websocket net.Addr
	Metrics   net.Addr
}

type listeners struct {
	rpc       *rpc.Server
	websocket net.Listener
	metrics   net.Listener
}

// Listen loads cluster state, binds rpc and http endpoints and publishes
// rpc endpoint for agents.
func (a *Admin) Listen(ctx context.Context) (Addresses, error) {
	cfg := a.c.Config
	if err := a.c.State.Init(ctx, a.c.DB); err != nil {
		return Addresses{}, err
	}
	server := rpc.NewServer(a.log, a.Router())
	rpcAddr, err := server.Listen(cfg.RPC.MyIP, cfg.RPC.AdminPort)
	if err != nil {
		return Addresses{}, err
	}
	advertise := cfg.RPC.MyIP
	if advertise == "" {
		advertise = cfg.RPC.AdminIP
	}
	if advertise == "" {
		advertise = rpcAddr.IP.String()
	}
	if err := a.registerEndpoint(ctx, advertise, rpcAddr.Port); err != nil {
		_ = server.Close()
		return Addresses{}, err
	}
	websocket, err := listenHTTP(cfg.RPC.MyIP, cfg.RPC.WebsocketPort)
	if err != nil {
		_ = server.Close()
		return Addresses{}, err
	}
	metrics, err := listenHTTP(cfg.RPC.MyIP, cfg.RPC.MetricsPort)
	if err != nil {
		_ = server.Close()
		_ = websocket.Close()
		return Addresses{}, err
	}
	a.listeners = &listeners{rpc: server, websocket: websocket, metrics: metrics}
	return Addresses{RPC: rpcAddr, Websocket: websocket.Addr(), Metrics: metrics.Addr()}, nil
}

// Serve runs bound endpoints and reconcilers until ctx is done.
func (a *Admin) Serve(ctx context.Context) error {
	if a.listeners == nil {
		return dspcommon.NewError(dspcommon.ErrProgramming, "admin is not bound")
	}
	scheduler, err := cron.NewScheduler(a.log)
	if err != nil {
		return err
	}
	for _, r := range cron.Reconcilers(a.c) {
		if err := scheduler.Register(r); err != nil {
			return err
		}
	}
	scheduler.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.listeners.rpc.Serve(gctx)
	})
	g.Go(func() error {
		return a.serveHTTP(gctx, a.listeners.websocket, a.WebsocketHandler())
	})
	g.Go(func() error {
		return a.serveHTTP(gctx, a.listeners.metrics, a.MetricsHandler())
	})
	err = g.Wait()
	if serr := scheduler.Shutdown(); serr != nil {
		a.log.Warn().Err(serr).Msg("failed to stop reconcilers")
	}
	a.release(a.c.Config.ShutdownGracePeriod)
	a.log.Info().Msg("admin stopped")
	return err
}

// Run binds endpoints and serves until ctx is done.
func (a *Admin) Run(ctx context.Context) error {
	addrs, err := a.Listen(ctx)
	if err != nil {
		return err
	}
	a.log.Info().Msgf("admin rpc on %s, websocket on %s, metrics on %s", addrs.RPC, addrs.Websocket, addrs.Metrics)
	return a.Serve(ctx)
}
