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
	"fmt"
	"net"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
)

type Server struct {
	grpc     *grpc.Server
	listener net.Listener
	log      zerolog.Logger
}

func NewServer(log zerolog.Logger, routers ...*Router) *Server {
	s := &Server{log: log}
	s.grpc = grpc.NewServer(
		grpc.ForceServerCodec(jsonCodec{}),
		grpc.ChainUnaryInterceptor(errorInterceptor, s.logInterceptor, recoverInterceptor(log)),
	)
	for _, router := range routers {
		s.grpc.RegisterService(router.ServiceDesc(), router)
	}
	return s
}

func (s *Server) logInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	started := time.Now()
	resp, err := handler(ctx, req)
	if err != nil {
		s.log.Error().Err(err).Msgf("call %s failed in %v", info.FullMethod, time.Since(started).Round(time.Millisecond))
	} else {
		s.log.Debug().Msgf("call %s finished in %v", info.FullMethod, time.Since(started).Round(time.Millisecond))
	}
	return resp, err
}

func recoverInterceptor(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Msgf("call %s panicked: %v\n%s", info.FullMethod, r, debug.Stack())
				err = dspcommon.NewError(dspcommon.ErrProgramming, "call %s panicked: %v", info.FullMethod, r)
			}
		}()
		return handler(ctx, req)
	}
}

func errorInterceptor(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	return resp, encodeError(err)
}

// Listen binds endpoint, port 0 picks free port.
func (s *Server) Listen(ip string, port int) (*net.TCPAddr, error) {
	listener, err := net.Listen("tcp", net.JoinHostPort(ip, fmt.Sprint(port)))
	if err != nil {
		return nil, dspcommon.WrapError(dspcommon.ErrConnect, err, "failed to bind rpc endpoint %s:%d", ip, port)
	}
	s.listener = listener
	return listener.Addr().(*net.TCPAddr), nil
}

// Serve blocks until context is done, then stops gracefully.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return dspcommon.NewError(dspcommon.ErrProgramming, "rpc server is not bound")
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Msgf("serving rpc on %s", s.listener.Addr())
		errCh <- s.grpc.Serve(s.listener)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.log.Info().Msg("stopping rpc server")
		s.grpc.GracefulStop()
		return nil
	}
}

// Close releases endpoint bound by Listen when server is not going to serve.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}
