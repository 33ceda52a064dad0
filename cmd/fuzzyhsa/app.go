package main

import (
	"context"
	"os"

	"github.com/fxnlabs/fuzzyhsa/internal/config"
	"github.com/fxnlabs/fuzzyhsa/internal/diag"
	"github.com/fxnlabs/fuzzyhsa/internal/gpu"
	"github.com/fxnlabs/fuzzyhsa/internal/hsa"
	"github.com/fxnlabs/fuzzyhsa/internal/kernels"
	"github.com/fxnlabs/fuzzyhsa/internal/session"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// runParams selects what the run command loads and exercises.
type runParams struct {
	// CodeObject is loaded as is when set; Kernel is compiled otherwise.
	CodeObject  string
	Kernel      string
	Symbol      string
	Allocations []uint64
}

func newGPUManager(cfg *config.Config, log *zap.Logger) (*gpu.Manager, error) {
	return gpu.NewManager(gpu.Options{
		Backend:      cfg.Runtime.Backend,
		TopologyRoot: cfg.Simulator.TopologyRoot,
		Devices:      gpu.SimDevices(cfg.Simulator.Devices),
	}, log)
}

func newEnv(m *gpu.Manager) *hsa.Env {
	return m.Env()
}

func newReporter(cfg *config.Config) *diag.Reporter {
	return diag.New(os.Stdout, cfg.Debug)
}

func newKernelManager(cfg *config.Config, log *zap.Logger) (*kernels.Manager, error) {
	compiler, err := kernels.SelectCompiler(cfg.Kernels.Compiler, cfg.Kernels.OffloadArch)
	if err != nil {
		return nil, err
	}
	m, err := kernels.NewManager(compiler, cfg.Kernels.CacheDir, log)
	if err != nil {
		return nil, err
	}
	if cfg.Kernels.Sources != "" {
		sources, err := config.LoadKernelSourcesConfig(cfg.Kernels.Sources)
		if err != nil {
			return nil, err
		}
		if err := m.RegisterSources(sources); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func newSession(lc fx.Lifecycle, cfg *config.Config, env *hsa.Env, report *diag.Reporter,
	km *kernels.Manager, p runParams, log *zap.Logger) (*session.Session, error) {
	ctx := context.Background()
	path := p.CodeObject
	if path == "" {
		var err error
		if path, err = km.CompileToCodeObject(ctx, p.Kernel); err != nil {
			return nil, err
		}
	}

	opts := []session.Option{
		session.WithQueueSize(cfg.Runtime.QueueSize),
		session.WithSearchDir(cfg.Loader.SearchDir),
		session.WithReporter(report),
		session.WithLogger(log),
	}
	if p.Symbol != "" {
		opts = append(opts, session.WithKernelName(p.Symbol))
	}
	s, err := session.New(ctx, env, path, opts...)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return s.Close()
		},
	})
	return s, nil
}

// exercise allocates the requested buffers and dispatches the loaded kernel
// once the application starts. It runs after the session's hook, so a failure
// here stops the application and closes the session.
func exercise(lc fx.Lifecycle, s *session.Session, p runParams) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			for _, size := range p.Allocations {
				if _, err := s.Allocate(size); err != nil {
					return err
				}
			}
			return s.Dispatch(s.Program().Kernel.Name)
		},
	})
}

func fxLogger(log *zap.Logger) fxevent.Logger {
	l := &fxevent.ZapLogger{Logger: log.Named("fx")}
	l.UseLogLevel(zapcore.DebugLevel)
	return l
}

// sessionModule wires a session for p. The session is closed when the
// application stops or fails to start.
func sessionModule(cfg *config.Config, log *zap.Logger, p runParams) fx.Option {
	return fx.Options(
		fx.WithLogger(func() fxevent.Logger { return fxLogger(log) }),
		fx.Supply(cfg, log, p),
		fx.Provide(
			newGPUManager,
			newEnv,
			newReporter,
			newKernelManager,
			newSession,
		),
		fx.Invoke(exercise),
	)
}
