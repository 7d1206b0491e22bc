package main

import (
	"fmt"
	"io"
	"math/rand/v2"
	"os"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TheBitDrifter/silo"
	"github.com/TheBitDrifter/silo/loader"
)

func newRootCmd() *cobra.Command {
	var configPath string
	rootCmd := &cobra.Command{
		Use:           "silo",
		Short:         "Archetype entity store tooling",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "world config file (.toml or .yaml)")

	rootCmd.AddCommand(
		newLoadCmd(&configPath),
		newSimulateCmd(&configPath),
	)
	return rootCmd
}

func newLoadCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "load [file]",
		Short:   "Load an entity file and print the resulting archetypes",
		Example: "silo load --config world.toml entities.json",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			world, _, err := newWorld(*configPath)
			if err != nil {
				return err
			}
			defer world.Logger().Sync()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			res, err := loader.Load(cmd.Context(), f, world)
			fmt.Fprintf(cmd.OutOrStdout(), "status: %s, loaded %d entities\n", res.Status, len(res.Entities))
			printArchetypes(cmd.OutOrStdout(), world)
			return err
		},
	}
	return cmd
}

func newSimulateCmd(configPath *string) *cobra.Command {
	var (
		entities    int
		frames      int
		profileMode string
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a movement workload with churn for profiling",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			world, comps, err := newWorld(*configPath)
			if err != nil {
				return err
			}
			defer world.Logger().Sync()

			switch profileMode {
			case "":
			case "cpu":
				defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
			case "mem":
				defer profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
			default:
				return fmt.Errorf("unknown profile mode %q", profileMode)
			}

			if err := simulate(world, comps, entities, frames); err != nil {
				return err
			}
			printArchetypes(cmd.OutOrStdout(), world)
			return nil
		},
	}
	cmd.Flags().IntVar(&entities, "entities", 10000, "entities to spawn")
	cmd.Flags().IntVar(&frames, "frames", 1000, "frames to run")
	cmd.Flags().StringVar(&profileMode, "profile", "", "write a profile: cpu or mem")
	return cmd
}

func newWorld(configPath string) (*silo.World, components, error) {
	cfg := silo.DefaultConfig()
	if configPath != "" {
		loaded, err := silo.LoadConfig(configPath)
		if err != nil {
			return nil, components{}, err
		}
		cfg = loaded
	}
	cfg.Registry = silo.NewRegistry()
	comps, err := registerComponents(cfg.Registry)
	if err != nil {
		return nil, components{}, err
	}
	world, err := silo.Factory.NewWorld(cfg)
	if err != nil {
		return nil, components{}, err
	}
	return world, comps, nil
}

// simulate moves every entity each frame, destroys the ones that leave the
// field and respawns them, so archetype tables churn the way a game's do.
func simulate(world *silo.World, comps components, entities, frames int) error {
	rng := rand.New(rand.NewPCG(1, 2))
	spawn := func(n int) error {
		created, err := world.NewEntities(n, comps.position, comps.velocity)
		if err != nil {
			return err
		}
		for _, e := range created {
			comps.velocity.Set(e, Velocity{X: rng.Float64()*2 - 1, Y: rng.Float64()*2 - 1})
		}
		return nil
	}
	if err := spawn(entities); err != nil {
		return err
	}

	for frame := range frames {
		err := silo.Each2(world, comps.position, comps.velocity, func(e silo.Entity, pos *Position, vel *Velocity) {
			pos.X += vel.X
			pos.Y += vel.Y
			if pos.X*pos.X+pos.Y*pos.Y > 1e4 {
				e.Destroy()
			}
		})
		if err != nil {
			return err
		}
		if missing := entities - world.Len(); missing > 0 {
			if err := spawn(missing); err != nil {
				return err
			}
		}
		world.Logger().Debug("frame done", zap.Int("frame", frame), zap.Int("entities", world.Len()))
	}
	return nil
}

func printArchetypes(w io.Writer, world *silo.World) {
	for _, a := range world.Archetypes() {
		names := make([]string, 0, a.Key().Len())
		for _, id := range a.Key().IDs() {
			if c, ok := world.Registry().Component(id); ok {
				names = append(names, c.Name())
			}
		}
		fmt.Fprintf(w, "archetype %d %v: %d/%d rows\n", a.ID(), names, a.Len(), a.Cap())
	}
}
