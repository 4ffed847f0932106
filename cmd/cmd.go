// Package cmd is the CLI entry point for ratelimitgw.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Polqt/ratelimitgw/config"
	"github.com/Polqt/ratelimitgw/gateway"
	"github.com/rs/zerolog/log"
)

// Run parses args and dispatches to a subcommand.
func Run(args []string) error {
	// Subcommands: gateway, inspect, version
	if len(args) == 0 {
		return runGateway("config.yaml")
	}
	switch args[0] {
	case "gateway":
		path := "config.yaml"
		if len(args) > 1 {
			path = args[1]
		}
		return runGateway(path)
	case "inspect":
		addr := "http://localhost:8080"
		if len(args) > 1 {
			addr = args[1]
		}
		return runInspect(addr)
	case "version":
		fmt.Println("ratelimitgw v0.1.0")
		return nil
	default:
		return fmt.Errorf("unknown command %q — try: gateway, inspect, version", args[0])
	}
}

func runGateway(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	gw.Start()
	defer gw.Stop()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: gw,
	}

	serveErr := make(chan error, 1)
	go func() {
		fmt.Printf("ratelimitgw listening on %s → upstreams %d\n", addr, len(cfg.UpstreamServices))
		serveErr <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

// runInspect fetches and pretty-prints metrics from a running gateway's
// admin HTTP server.
func runInspect(addr string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(addr + "/metrics")
	if err != nil {
		return fmt.Errorf("fetch metrics: %w", err)
	}
	defer resp.Body.Close()

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode metrics: %w", err)
	}

	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("format metrics: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
