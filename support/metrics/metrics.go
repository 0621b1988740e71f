// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package metrics serves Prometheus metrics over HTTP.
package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/danjacques/gosift/support/logging"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Path is the HTTP path that metrics are served on.
const Path = "/metrics"

// Server serves a private metrics registry.
type Server struct {
	// Addr is the address that the Server listens on.
	Addr net.Addr

	srv http.Server
}

// Serve starts serving the metrics that register installs on addr.
//
// Each register function is a package's RegisterMonitoring.
func Serve(addr string, l logging.L, register ...func(prometheus.Registerer)) (*Server, error) {
	l = logging.Must(l)

	reg := prometheus.NewRegistry()
	for _, fn := range register {
		fn(reg)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %q", addr)
	}

	mux := http.NewServeMux()
	mux.Handle(Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s := Server{
		Addr: ln.Addr(),
		srv:  http.Server{Handler: mux},
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			l.Warnf("Metrics server failed: %s", err)
		}
	}()
	l.Infof("Serving metrics on http://%s%s", s.Addr, Path)
	return &s, nil
}

// Close stops the server, waiting briefly for in-flight requests.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
