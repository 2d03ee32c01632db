// Package ops serves the operational HTTP endpoints: liveness, Prometheus
// metrics and pprof. It is meant for localhost or a private interface,
// never the public internet.
package ops

import (
	"context"
	"errors"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jxoesneon/hermesbot/pkg/logx"
)

const DefaultAddr = "127.0.0.1:6060"

type Server struct {
	srv *http.Server
	log logx.Logger
}

func NewServer(addr string, reg *prometheus.Registry, log logx.Logger) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

// Start serves in the background; listen failures are logged, not fatal.
// The bot keeps running without its ops endpoints.
func (s *Server) Start() {
	go func() {
		s.log.Info("ops server listening", logx.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("ops server stopped", logx.Err(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
