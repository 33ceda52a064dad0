package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fxnlabs/fuzzyhsa/internal/session"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const stopTimeout = 15 * time.Second

func runCommand(state *cliState) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Bring up a session, load a kernel and exercise it",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "code-object",
				Usage: "Code object to load; the kernel is compiled first when empty",
			},
			&cli.StringFlag{
				Name:  "kernel",
				Usage: "Catalog kernel to compile",
				Value: "vector_add",
			},
			&cli.StringFlag{
				Name:  "symbol",
				Usage: "Kernel symbol to resolve; defaults to the code object name",
			},
			&cli.StringSliceFlag{
				Name:  "alloc",
				Usage: "Buffer to allocate from the global pool, e.g. 4MiB (repeatable)",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve Prometheus metrics on this address and hold the session until interrupted",
			},
		},
		Action: func(c *cli.Context) error {
			p := runParams{
				CodeObject: c.String("code-object"),
				Kernel:     c.String("kernel"),
				Symbol:     c.String("symbol"),
			}
			for _, s := range c.StringSlice("alloc") {
				size, err := humanize.ParseBytes(s)
				if err != nil {
					return fmt.Errorf("invalid allocation size %q: %w", s, err)
				}
				p.Allocations = append(p.Allocations, size)
			}

			var s *session.Session
			opts := []fx.Option{sessionModule(state.cfg, state.log, p), fx.Populate(&s)}
			addr := c.String("metrics-addr")
			if addr != "" {
				opts = append(opts, fx.Invoke(func(lc fx.Lifecycle) { serveMetrics(lc, addr, state.log) }))
			}

			app := fx.New(opts...)
			if err := app.Err(); err != nil {
				return err
			}
			startCtx, cancel := context.WithTimeout(c.Context, fx.DefaultTimeout)
			defer cancel()
			if err := app.Start(startCtx); err != nil {
				return err
			}

			printSession(s)
			if addr != "" {
				sig := <-app.Done()
				state.log.Info("Shutting down", zap.String("signal", sig.String()))
			}

			stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			return app.Stop(stopCtx)
		},
	}
}

func serveMetrics(lc fx.Lifecycle, addr string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("metrics server failed", zap.Error(err))
				}
			}()
			log.Info("Serving metrics", zap.String("addr", addr))
			return nil
		},
		OnStop: srv.Shutdown,
	})
}

func printSession(s *session.Session) {
	k := s.Program().Kernel
	fmt.Printf("session %s\n", s.ID())
	fmt.Printf("  agent:  %d\n", s.Agent().Handle)
	fmt.Printf("  queue:  %d (size %d)\n", s.Queue().Handle, s.Queue().Size)
	fmt.Printf("  kernel: %s (object 0x%x, kernarg %s)\n", k.Name, k.KernelObject,
		humanize.IBytes(uint64(k.KernargSegmentSize)))
	for _, b := range s.Buffers() {
		fmt.Printf("  buffer: 0x%x %s\n", b.Ptr, humanize.IBytes(b.Size))
	}
}
