package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"towersim/config"
	"towersim/sim"
	"towersim/telemetry"
	"towersim/utils"
)

func main() {
	conf := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Load config if a path is provided; overrides default and env
	if *conf != "" {
		if err := config.Reload(*conf); err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			os.Exit(1)
		}
	}

	defer utils.Logger.Sync()

	utils.Logger.Info("towersim starting",
		zap.Int("steps_per_sec", config.GlobalCfg.StepsPerS),
		zap.String("telemetry_listen", config.GlobalCfg.Telemetry.Listen))

	world := buildWorld()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var telemetrySrv *telemetry.Server
	if config.GlobalCfg.Telemetry.Enabled {
		srv, err := telemetry.NewServer(config.GlobalCfg.Telemetry.Listen)
		if err != nil {
			utils.Logger.Error("telemetry server failed to start", zap.Error(err))
		} else {
			telemetrySrv = srv
			go telemetrySrv.Serve(ctx)
			defer telemetrySrv.Close()
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	tickInterval := time.Second / time.Duration(config.GlobalCfg.StepsPerS)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	noise := config.GlobalCfg.Channel.NoiseEnabled

	for {
		select {
		case <-sigCh:
			utils.Logger.Info("towersim shutting down")
			return
		case <-ticker.C:
			snap := world.Step(noise)
			if telemetrySrv != nil {
				telemetrySrv.Publish(ctx, snap)
			}
		}
	}
}

// buildWorld wires config.GlobalCfg into a fresh sim.World. It stands in for
// the interactive driver spec.md §1 assumes — the canvas, mouse handling,
// and topology editing are out of scope here — by seeding a single
// reference topology instead.
func buildWorld() *sim.World {
	w := sim.NewWorld(time.Now().UnixNano())
	w.SetStepsPerSec(config.GlobalCfg.StepsPerS)
	w.SetNoise(config.GlobalCfg.Channel.NoiseEnabled)
	w.SetARQDefaults(config.GlobalCfg.ARQ.TimeoutTicks, config.GlobalCfg.ARQ.MaxRetx)

	if len(config.GlobalCfg.Bands) > 0 {
		bands := make([]sim.BandInfo, len(config.GlobalCfg.Bands))
		for i, b := range config.GlobalCfg.Bands {
			bands[i] = sim.BandInfo{Name: b.Name, RangeM: b.RangeM, ThroughputBps: b.ThroughputBps}
		}
		w.SetBands(bands)
	}

	t0 := w.CreateTower(1, 0, 0)
	t1 := w.CreateTower(2, 1000, 0)
	t2 := w.CreateTower(3, 2000, 0)
	w.Connect(t0, t1)
	w.Connect(t1, t2)

	a := w.CreateUE(50, 0, 0)
	w.CreateUE(51, 2000, 0)
	w.SetUETx(a, sim.TxIntent{Mode: sim.TxRandom, DstIP: 51})

	return w
}
