package main

import (
	"fmt"
	"strings"

	"github.com/fxnlabs/fuzzyhsa/internal/kernels"
	"github.com/urfave/cli/v2"
)

func compileCommand(state *cliState) *cli.Command {
	return &cli.Command{
		Name:      "compile",
		Usage:     "Compile catalog kernels into the code object cache",
		ArgsUsage: "<kernel>...",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return fmt.Errorf("no kernel given")
			}
			m, err := newKernelManager(state.cfg, state.log)
			if err != nil {
				return err
			}
			for _, name := range c.Args().Slice() {
				path, err := m.CompileToCodeObject(c.Context, name)
				if err != nil {
					return err
				}
				fmt.Printf("%s: %s (%s)\n", name, path, m.Compiler().Name())
			}
			return nil
		},
	}
}

func kernelsCommand(state *cliState) *cli.Command {
	return &cli.Command{
		Name:  "kernels",
		Usage: "List the kernel catalog",
		Action: func(c *cli.Context) error {
			m, err := newKernelManager(state.cfg, state.log)
			if err != nil {
				return err
			}
			fmt.Printf("cache: %s\n", m.CacheDir())
			for _, k := range m.Kernels() {
				size, align, err := kernels.KernargLayout(k.Params)
				if err != nil {
					return fmt.Errorf("kernel %s: %w", k.Name, err)
				}
				fmt.Printf("%s(%s) kernarg %d bytes, align %d\n", k.Name, signature(k.Params), size, align)
				if k.Reference != nil {
					a, b := []float64{1, 2, 3}, []float64{4, 5, 6}
					fmt.Printf("  reference %v, %v -> %v\n", a, b, k.Reference(a, b))
				}
			}
			return nil
		},
	}
}

func signature(params []kernels.Param) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		if p.Name == "" {
			parts = append(parts, p.Type)
			continue
		}
		parts = append(parts, p.Type+" "+p.Name)
	}
	return strings.Join(parts, ", ")
}
