package main

import (
	"fmt"
	"os"

	"github.com/fxnlabs/fuzzyhsa/internal/config"
	"github.com/fxnlabs/fuzzyhsa/internal/hsa"
	"github.com/fxnlabs/fuzzyhsa/internal/logger"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

// cliState is filled in by the Before hook and read by the commands.
type cliState struct {
	configPath string
	cfg        *config.Config
	log        *zap.Logger
}

func (s *cliState) load() error {
	var err error
	if s.configPath == "" {
		s.cfg = config.Default()
	} else if s.cfg, err = config.LoadConfig(s.configPath); err != nil {
		return fmt.Errorf("failed to load config %s: %w", s.configPath, err)
	}
	zapLogger, err := logger.New(s.cfg.Logger.Verbosity, s.cfg.Logger.Encoding)
	if err != nil {
		return err
	}
	s.log = zapLogger.Named("cli")
	return nil
}

func newApp(state *cliState) *cli.App {
	return &cli.App{
		Name:  "fuzzyhsa",
		Usage: "Bring up HSA sessions and load kernels for GPU fuzzing",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to the config file; built-in defaults when empty",
				EnvVars:     []string{"FUZZYHSA_CONFIG"},
				Destination: &state.configPath,
			},
		},
		Before: func(c *cli.Context) error {
			return state.load()
		},
		Commands: []*cli.Command{
			runCommand(state),
			compileCommand(state),
			kernelsCommand(state),
			topologyCommand(state),
			infoCommand(state),
			initCommand(),
		},
	}
}

func main() {
	state := &cliState{}
	if err := newApp(state).Run(os.Args); err != nil {
		if state.log != nil && hsa.IsFatal(err) {
			state.log.Fatal("failed to run app", zap.Error(err))
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
