package main

import (
	"fmt"

	"github.com/common-nighthawk/go-figure"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
)

func infoCommand(state *cliState) *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "Show the selected runtime and its agents",
		Action: func(c *cli.Context) error {
			figure.NewFigure("fuzzyHSA", "", true).Print()
			fmt.Println()

			m, err := newGPUManager(state.cfg, state.log)
			if err != nil {
				return err
			}
			fmt.Printf("backend: %s\n", m.GetBackendType())
			devices, err := m.Devices()
			if err != nil {
				return err
			}
			for i, d := range devices {
				fmt.Printf("agent %d: %s (%s)\n", i, d.Name, d.Type)
				for _, p := range d.Pools {
					fmt.Printf("  %-8s %s\n", p.Segment, humanize.IBytes(p.Size))
				}
			}
			return nil
		},
	}
}
