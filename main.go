package main

import (
	"flag"
	"log/slog"
	"math"
	"math/rand"
	"os"

	"github.com/pthm-cable/crowd/components"
	"github.com/pthm-cable/crowd/config"
	"github.com/pthm-cable/crowd/game"
	"github.com/pthm-cable/crowd/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	agents := flag.Int("agents", 64, "Number of agents in the crossing scenario")
	obstacles := flag.Int("obstacles", 4, "Number of random obstacles")
	maxTicks := flag.Int("max-ticks", 3000, "Stop after N ticks (0 = unlimited)")
	seed := flag.Int64("seed", 1, "RNG seed")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	asyncBuild := flag.Bool("async-build", false, "Build flow fields on background workers")
	logStats := flag.Bool("log-stats", true, "Output stats via slog")

	flag.Parse()

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	om, err := telemetry.NewOutputManager(*outputDir)
	if err != nil {
		slog.Error("failed to create output", "error", err)
		os.Exit(1)
	}
	defer om.Close()
	if err := om.WriteConfig(cfg); err != nil {
		slog.Error("failed to write config snapshot", "error", err)
	}

	nav := game.NewNavigator(game.Options{
		AsyncBuild:   *asyncBuild || cfg.Navigation.AsyncBuild,
		BuildWorkers: cfg.Navigation.BuildWorkers,
	})
	defer nav.Unload()

	spawnCrossingScenario(nav, rand.New(rand.NewSource(*seed)), *agents, *obstacles)

	slog.Info("starting crowd simulation",
		"agents", *agents,
		"obstacles", *obstacles,
		"seed", *seed,
		"max_ticks", *maxTicks,
		"async_build", *asyncBuild,
	)

	dt := cfg.Derived.DT32
	windowTicks := int64(cfg.Telemetry.StatsWindow / cfg.Physics.DT)
	if windowTicks < 1 {
		windowTicks = 1
	}

	for {
		nav.Step(dt)

		if nav.Tick()%windowTicks == 0 {
			stats := nav.WindowStats()
			perf := nav.Perf().Stats()
			if *logStats {
				stats.LogStats()
				perf.LogStats()
			}
			if err := om.WriteStats(stats); err != nil {
				slog.Error("failed to write stats", "error", err)
			}
			if err := om.WritePerf(perf, stats.WindowEnd); err != nil {
				slog.Error("failed to write perf", "error", err)
			}
		}

		if *maxTicks > 0 && int(nav.Tick()) >= *maxTicks {
			slog.Info("max ticks reached", "tick", nav.Tick())
			return
		}
	}
}

// spawnCrossingScenario places agents on a ring, each seeking the point
// diametrically opposite, plus a handful of box obstacles near the middle.
func spawnCrossingScenario(nav *game.Navigator, rng *rand.Rand, agents, obstacles int) {
	layout := nav.Layout()
	ringRadius := float32(layout.Width) * layout.CellSize * 0.4

	for i := 0; i < agents; i++ {
		angle := float64(i) / float64(agents) * 2 * math.Pi
		x := ringRadius * float32(math.Cos(angle))
		y := ringRadius * float32(math.Sin(angle))

		size := components.AgentSize(rng.Intn(int(components.NumAgentSizes)))
		speed := 2 + rng.Float32()*2

		e := nav.SpawnAgent(x, y, size, speed)
		goal := layout.CellAt(-x, -y)
		nav.SetGoal(e, components.GoalAt(goal))
	}

	for i := 0; i < obstacles; i++ {
		w := 2 + rng.Float32()*4
		h := 2 + rng.Float32()*4
		x := (rng.Float32() - 0.5) * ringRadius
		y := (rng.Float32() - 0.5) * ringRadius
		outline := [][2]float32{{-w, -h}, {w, -h}, {w, h}, {-w, h}}
		nav.SpawnObstacle(x, y, outline, 0, 2)
	}
}
