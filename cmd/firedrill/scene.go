package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/firedrill/internal/config"
	"github.com/talgya/firedrill/internal/world"
)

var sceneSeed int64

var sceneCmd = &cobra.Command{
	Use:   "scene",
	Short: "Generate the building and print its layout",
	RunE:  printScene,
}

func init() {
	sceneCmd.Flags().Int64Var(&sceneSeed, "seed", 1, "generation seed")
}

func printScene(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	reg, grid, err := world.Generate(cfg.Building, sceneSeed)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	walkable := 0
	for f := range grid.Floors() {
		for z := range grid.Depth {
			for x := range grid.Width {
				if grid.Walkable(f, x, z) {
					walkable++
				}
			}
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Building: %d floors, %dx%d cells, %s walkable\n",
		grid.Floors(), grid.Width, grid.Depth, humanize.Comma(int64(walkable)))
	fmt.Fprintf(out, "Rooms %d, corridors %d, exits %d, smoke regions %d\n\n",
		len(reg.Rooms()), len(reg.Corridors()), len(reg.Exits()), len(reg.SmokeRegions()))

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BEACON\tPOSITION\tNEXT\tFINAL")
	for _, b := range reg.Beacons() {
		next := "-"
		if n, ok := reg.Beacon(b.Next); ok {
			next = n.Name
		}
		fmt.Fprintf(tw, "%s\t(%.1f, %.1f, %.1f)\t%s\t%v\n",
			b.Name, b.Position.X, b.Position.Y, b.Position.Z, next, b.FinalExit)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if err := reg.ValidateChains(); err != nil {
		fmt.Fprintf(out, "\nchain problems: %v\n", err)
	}
	return nil
}
