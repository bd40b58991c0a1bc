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
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/metrics"
)

const (
	wsPath      = "/ws"
	metricsPath = "/metrics"
	healthzPath = "/healthz"

	readHeaderTimeout = 10 * time.Second
	httpShutdownWait  = 5 * time.Second
)

type health struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Clusters int    `json:"clusters"`
	Flows    int    `json:"active_taskflows"`
}

// WebsocketHandler routes dashboard push channel.
func (a *Admin) WebsocketHandler() http.Handler {
	r := mux.NewRouter()
	r.Handle(wsPath, a.hub).Methods(http.MethodGet)
	r.HandleFunc(healthzPath, a.healthz).Methods(http.MethodGet)
	return r
}

// MetricsHandler routes prometheus scrape endpoint.
func (a *Admin) MetricsHandler() http.Handler {
	r := mux.NewRouter()
	r.Handle(metricsPath, metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc(healthzPath, a.healthz).Methods(http.MethodGet)
	return r
}

func (a *Admin) healthz(w http.ResponseWriter, _ *http.Request) {
	body := health{
		Status:   "ok",
		Version:  a.version,
		Clusters: len(a.c.State.Clusters.List()),
		Flows:    len(a.c.State.Tasks.Active()),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.log.Warn().Err(err).Msg("failed to write health response")
	}
}

func listenHTTP(ip string, port int) (net.Listener, error) {
	addr := net.JoinHostPort(ip, strconv.Itoa(port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, dspcommon.WrapError(dspcommon.ErrConnect, err, "failed to bind http endpoint %s", addr)
	}
	return listener, nil
}

// serveHTTP serves handler until ctx is done, then shuts server down.
func (a *Admin) serveHTTP(ctx context.Context, listener net.Listener, handler http.Handler) error {
	server := &http.Server{Handler: handler, ReadHeaderTimeout: readHeaderTimeout}
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownWait)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.log.Warn().Err(err).Msgf("http server on %s was not stopped gracefully", listener.Addr())
		}
	}()
	a.log.Info().Msgf("http server listens on %s", listener.Addr())
	if err := server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrapf(err, "http server on %s failed", listener.Addr())
	}
	<-done
	return nil
}
