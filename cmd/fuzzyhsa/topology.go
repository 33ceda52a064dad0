package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/fxnlabs/fuzzyhsa/internal/topology"
	"github.com/urfave/cli/v2"
)

func topologyCommand(state *cliState) *cli.Command {
	return &cli.Command{
		Name:  "topology",
		Usage: "Print the KFD topology nodes",
		Action: func(c *cli.Context) error {
			root := state.cfg.Simulator.TopologyRoot
			if root == "" {
				root = topology.DefaultRoot
			}
			nodes, err := topology.NewReader(root).Nodes()
			if err != nil {
				return err
			}
			for _, n := range nodes {
				kind := "cpu"
				if n.IsGPU() {
					kind = "gpu"
				}
				fmt.Printf("node %d: %s %s", n.ID, kind, n.Name)
				if isa := n.ISAName(); isa != "" {
					fmt.Printf(" (%s)", isa)
				}
				fmt.Println()
				if size := n.LocalMemSize(); size > 0 {
					fmt.Printf("  local memory: %s\n", humanize.IBytes(size))
				}
				if lds := n.LDSSize(); lds > 0 {
					fmt.Printf("  LDS: %s\n", humanize.IBytes(lds))
				}
			}
			return nil
		},
	}
}
