// fieldview is a development tool that runs the crossing scenario and
// renders the obstacle field, the flow field of a chosen goal, and the
// agents. It is not part of the library surface.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/crowd/components"
	"github.com/pthm-cable/crowd/config"
	"github.com/pthm-cable/crowd/field"
	"github.com/pthm-cable/crowd/game"
)

const (
	windowWidth  = 1100
	windowHeight = 900
	panelWidth   = 220
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	agents := flag.Int("agents", 48, "Number of agents")
	seed := flag.Int64("seed", 1, "RNG seed")
	flag.Parse()

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	nav := game.NewNavigator(game.Options{})
	defer nav.Unload()

	rng := rand.New(rand.NewSource(*seed))
	layout := nav.Layout()
	center := layout.Center()
	ringRadius := float32(layout.Width) * layout.CellSize * 0.4

	// Everyone converges on the center so one cache entry is always live.
	for i := 0; i < *agents; i++ {
		angle := float64(i) / float64(*agents) * 2 * math.Pi
		x := ringRadius * float32(math.Cos(angle))
		y := ringRadius * float32(math.Sin(angle))
		size := components.AgentSize(rng.Intn(int(components.NumAgentSizes)))
		e := nav.SpawnAgent(x, y, size, 2+rng.Float32()*2)
		nav.SetGoal(e, components.GoalAt(center))
	}
	for i := 0; i < 4; i++ {
		w := 2 + rng.Float32()*4
		h := 2 + rng.Float32()*4
		x := (rng.Float32() - 0.5) * ringRadius
		y := (rng.Float32() - 0.5) * ringRadius
		nav.SpawnObstacle(x, y, [][2]float32{{-w, -h}, {w, -h}, {w, h}, {-w, h}}, 0, 2)
	}

	rl.InitWindow(windowWidth, windowHeight, "Flow Field Viewer")
	defer rl.CloseWindow()
	rl.SetTargetFPS(60)

	viewSize := float32(windowHeight - 20)
	scale := viewSize / (float32(layout.Width) * layout.CellSize)
	toScreen := func(x, y float32) (float32, float32) {
		return 10 + (x+float32(layout.Width)*layout.CellSize/2)*scale,
			10 + (float32(layout.Height)*layout.CellSize/2-y)*scale
	}

	sizeValue := float32(0)
	paused := false

	for !rl.WindowShouldClose() {
		if rl.IsKeyPressed(rl.KeySpace) {
			paused = !paused
		}
		if !paused {
			nav.Step(cfg.Derived.DT32)
		}

		viewSizeClass := components.AgentSize(sizeValue + 0.5)
		flow := nav.Cache().Peek(components.GoalAt(center), viewSizeClass)

		rl.BeginDrawing()
		rl.ClearBackground(rl.RayWhite)

		cellPx := layout.CellSize * scale
		for cy := 0; cy < layout.Height; cy++ {
			for cx := 0; cx < layout.Width; cx++ {
				c := field.At(cx, cy)
				cost := nav.ObstacleField().CostAt(c)
				if cost.Admits(components.LargestAgentSize) {
					continue
				}
				px, py := layout.PositionOf(c)
				sx, sy := toScreen(px-layout.CellSize/2, py+layout.CellSize/2)
				color := rl.LightGray
				if cost.Blocked {
					color = rl.DarkGray
				} else if !cost.Admits(viewSizeClass) {
					color = rl.Gray
				}
				rl.DrawRectangle(int32(sx), int32(sy), int32(cellPx)+1, int32(cellPx)+1, color)
			}
		}

		if flow != nil && flow.Built() {
			for cy := 0; cy < layout.Height; cy += 2 {
				for cx := 0; cx < layout.Width; cx += 2 {
					c := field.At(cx, cy)
					dir, repulse := flow.Sample(c)
					if dir == field.DirNone {
						continue
					}
					v := dir.Velocity()
					px, py := layout.PositionOf(c)
					sx, sy := toScreen(px, py)
					ex, ey := toScreen(px+v[0]*layout.CellSize, py+v[1]*layout.CellSize)
					color := rl.SkyBlue
					if repulse {
						color = rl.Orange
					}
					rl.DrawLineEx(rl.Vector2{X: sx, Y: sy}, rl.Vector2{X: ex, Y: ey}, 1, color)
				}
			}
		}

		// agents
		for _, a := range nav.Agents(nil) {
			pos := nav.Position(a)
			body := nav.Body(a)
			sx, sy := toScreen(pos.X, pos.Y)
			color := rl.Blue
			if nav.Pathing(a).TargetReached {
				color = rl.Green
			}
			rl.DrawCircle(int32(sx), int32(sy), body.Radius*scale, color)
		}

		// panel
		panelX := float32(windowWidth - panelWidth + 10)
		rl.DrawText("Flow Field Viewer", int32(panelX), 20, 20, rl.DarkGray)
		rl.DrawText("size class", int32(panelX), 60, 14, rl.Gray)
		sizeValue = gui.SliderBar(
			rl.Rectangle{X: panelX, Y: 80, Width: panelWidth - 80, Height: 20},
			"", viewSizeClass.String(), sizeValue, 0, float32(components.NumAgentSizes-1),
		)

		ttl := nav.Cache().TTL(components.GoalAt(center))
		rl.DrawText(fmt.Sprintf("tick: %d", nav.Tick()), int32(panelX), 120, 16, rl.DarkGray)
		rl.DrawText(fmt.Sprintf("cache entries: %d", nav.Cache().Len()), int32(panelX), 140, 16, rl.DarkGray)
		rl.DrawText(fmt.Sprintf("goal ttl: %.1fs", ttl), int32(panelX), 160, 16, rl.DarkGray)
		rl.DrawText("space: pause", int32(panelX), 200, 14, rl.Gray)
		if paused {
			rl.DrawText("PAUSED", int32(panelX), 220, 16, rl.Red)
		}

		rl.EndDrawing()
	}
}
