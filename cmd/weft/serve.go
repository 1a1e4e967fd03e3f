package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"

	"github.com/chazu/weft/server"
)

// lsp handles `weft lsp`. Logging must not go to stdout, which carries the
// protocol.
func (c *cli) lsp(args []string) int {
	e, closeEngine, err := c.engine()
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 1
	}
	defer closeEngine()

	if err := server.NewLSP(e).Run(); err != nil {
		fmt.Fprintf(c.stderr, "LSP error: %v\n", err)
		return 1
	}
	return 0
}

// serve handles `weft serve [-addr a] [-grpc a]`.
func (c *cli) serve(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	addr := fs.String("addr", c.manifest.Server.Addr, "Connect (HTTP) listen address")
	grpcAddr := fs.String("grpc", c.manifest.Server.GRPCAddr, "Native gRPC listen address (empty to disable)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	e, closeEngine, err := c.engine()
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 1
	}
	defer closeEngine()

	srv := server.New(e)
	defer srv.Stop()

	if *grpcAddr != "" {
		lis, err := net.Listen("tcp", *grpcAddr)
		if err != nil {
			fmt.Fprintf(c.stderr, "Error: %v\n", err)
			return 1
		}
		go func() {
			if err := srv.ServeGRPC(lis); err != nil {
				log.Errorf("gRPC server: %s", err)
			}
		}()
	}

	if err := srv.ListenAndServe(*addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Fprintf(c.stderr, "Server error: %v\n", err)
		return 1
	}
	return 0
}
