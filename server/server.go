package server

import (
	"net"
	"net/http"

	"google.golang.org/grpc"
)

// WeftServer serves the Runner over Connect (HTTP) and, optionally, a
// separate native gRPC listener. Both share one Executor.
type WeftServer struct {
	exec   *Executor
	runner *Runner
	mux    *http.ServeMux
	grpc   *grpc.Server
}

// New creates a WeftServer around the given engine.
func New(e *Engine) *WeftServer {
	exec := NewExecutor(e)
	runner := NewRunner(exec)

	s := &WeftServer{
		exec:   exec,
		runner: runner,
		mux:    http.NewServeMux(),
		grpc:   grpc.NewServer(),
	}

	path, handler := NewRunnerHandler(runner)
	s.mux.Handle(path, handler)
	RegisterRunnerServer(s.grpc, runner)

	return s
}

// Handler returns the HTTP handler serving the Connect endpoints.
func (s *WeftServer) Handler() http.Handler { return s.mux }

// ListenAndServe starts the HTTP server on the given address.
// The address should be in the form "host:port" or ":port".
func (s *WeftServer) ListenAndServe(addr string) error {
	log.Noticef("Weft server listening on %s", addr)
	log.Noticef("  Connect (HTTP/JSON): http://%s%s", addr, RunProcedure)
	return http.ListenAndServe(addr, s.mux)
}

// ServeGRPC serves native gRPC on lis until Stop is called.
func (s *WeftServer) ServeGRPC(lis net.Listener) error {
	log.Noticef("  gRPC (binary):       grpc://%s", lis.Addr())
	return s.grpc.Serve(lis)
}

// Stop shuts down the gRPC server and the executor.
func (s *WeftServer) Stop() {
	s.grpc.Stop()
	s.exec.Stop()
}
