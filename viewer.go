package main

import (
	"fmt"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/navkit/camera"
	"github.com/pthm-cable/navkit/components"
	"github.com/pthm-cable/navkit/config"
	"github.com/pthm-cable/navkit/navmesh"
	"github.com/pthm-cable/navkit/query"
	"github.com/pthm-cable/navkit/sim"
)

// areaColor maps polygon areas to fill colors. Obstructed polygons
// override their area color.
func areaColor(area uint8, flags uint16) rl.Color {
	if flags&navmesh.FlagObstructed != 0 {
		return rl.Color{R: 190, G: 60, B: 60, A: 200}
	}
	switch area {
	case navmesh.AreaWater:
		return rl.Color{R: 70, G: 120, B: 200, A: 200}
	case navmesh.AreaGrass:
		return rl.Color{R: 90, G: 160, B: 90, A: 200}
	case navmesh.AreaRoad:
		return rl.Color{R: 150, G: 130, B: 100, A: 200}
	default:
		return rl.Color{R: 110, G: 125, B: 135, A: 200}
	}
}

// runViewer opens the top-down viewer and steps the simulation until
// the window closes or maxTicks elapses.
func runViewer(s *sim.Sim, cfg *config.Config, maxTicks int) {
	rl.InitWindow(int32(cfg.Viewer.Width), int32(cfg.Viewer.Height), "navkit sandbox")
	defer rl.CloseWindow()
	rl.SetTargetFPS(int32(cfg.Viewer.TargetFPS))

	bounds, _ := s.Mesh().Bounds()
	cam := camera.New(float32(cfg.Viewer.Width), float32(cfg.Viewer.Height), cfg.Derived.Scale32, bounds)
	toScreen := func(p navmesh.Vec3) rl.Vector2 {
		sx, sy := cam.WorldToScreen(p)
		return rl.Vector2{X: sx, Y: sy}
	}
	toWorld := func(v rl.Vector2) navmesh.Vec3 {
		return cam.ScreenToWorld(v.X, v.Y)
	}

	obstacles := query.NewObstacleSet(s.Pathfinder())
	var placed []query.ObstacleID

	paused := false
	speed := float32(1)

	for !rl.WindowShouldClose() {
		if !paused {
			for i := 0; i < int(speed); i++ {
				s.Step()
			}
		}
		if maxTicks > 0 && int(s.Tick()) >= maxTicks {
			break
		}

		// Left click places an obstacle, right click removes the
		// newest one.
		if rl.IsMouseButtonPressed(rl.MouseLeftButton) && !overPanel(rl.GetMousePosition()) {
			placed = append(placed, obstacles.Add(toWorld(rl.GetMousePosition()), 2))
		}
		if rl.IsMouseButtonPressed(rl.MouseRightButton) && len(placed) > 0 {
			obstacles.Remove(placed[len(placed)-1])
			placed = placed[:len(placed)-1]
		}
		if rl.IsKeyPressed(rl.KeySpace) {
			paused = !paused
		}

		if wheel := rl.GetMouseWheelMove(); wheel != 0 {
			mouse := rl.GetMousePosition()
			factor := float32(1.1)
			if wheel < 0 {
				factor = 1 / factor
			}
			cam.ZoomAt(mouse.X, mouse.Y, factor)
		}
		if rl.IsMouseButtonDown(rl.MouseMiddleButton) {
			delta := rl.GetMouseDelta()
			cam.Pan(delta.X, delta.Y)
		}

		rl.BeginDrawing()
		rl.ClearBackground(rl.Color{R: 28, G: 30, B: 34, A: 255})

		// Mesh triangles. Screen Y grows downward, so the vertex
		// order flips to stay front-facing.
		tris := s.Mesh().DebugGeometry()
		for _, tri := range tris {
			rl.DrawTriangle(toScreen(tri.A), toScreen(tri.C), toScreen(tri.B), areaColor(tri.Area, tri.Flags))
		}
		for _, tri := range tris {
			rl.DrawTriangleLines(toScreen(tri.A), toScreen(tri.C), toScreen(tri.B), rl.Color{R: 50, G: 55, B: 60, A: 255})
		}
		for _, seg := range s.Mesh().DebugOffMesh() {
			rl.DrawLineEx(toScreen(seg.Start), toScreen(seg.End), 2, rl.Color{R: 200, G: 170, B: 60, A: 255})
		}

		// Agents and their paths.
		s.EachAgent(func(e ecs.Entity, tr *components.Transform, agent *components.NavAgent) {
			if !cam.IsVisible(tr.Position, 1) {
				return
			}
			for i := agent.PathIndex; i < len(agent.Path); i++ {
				from := tr.Position
				if i > agent.PathIndex {
					from = agent.Path[i-1]
				}
				rl.DrawLineEx(toScreen(from), toScreen(agent.Path[i]), 1.5, rl.Color{R: 90, G: 200, B: 120, A: 180})
			}
			rl.DrawCircleV(toScreen(tr.Position), 5, agentColor(agent.State))
		})

		drawPanel(s, &paused, &speed)
		rl.EndDrawing()
	}
}

func agentColor(state components.AgentState) rl.Color {
	switch state {
	case components.StateMoving:
		return rl.Color{R: 120, G: 220, B: 140, A: 255}
	case components.StateFailed:
		return rl.Color{R: 230, G: 90, B: 90, A: 255}
	case components.StateArrived:
		return rl.Color{R: 230, G: 210, B: 90, A: 255}
	default:
		return rl.Color{R: 180, G: 180, B: 190, A: 255}
	}
}

// Panel geometry shared by drawPanel and the click guard.
var panelRect = rl.Rectangle{X: 10, Y: 10, Width: 230, Height: 120}

func overPanel(p rl.Vector2) bool {
	return rl.CheckCollisionPointRec(p, panelRect)
}

func drawPanel(s *sim.Sim, paused *bool, speed *float32) {
	rl.DrawRectangleRec(panelRect, rl.Color{R: 20, G: 22, B: 26, A: 230})

	x := panelRect.X + 10
	y := panelRect.Y + 8

	rl.DrawText(fmt.Sprintf("tick %d  agents %d", s.Tick(), s.AgentCount()), int32(x), int32(y), 14, rl.RayWhite)
	y += 22

	rl.DrawText("speed", int32(x), int32(y), 12, rl.Gray)
	y += 16
	*speed = gui.SliderBar(
		rl.Rectangle{X: x, Y: y, Width: 150, Height: 18},
		"1", "10",
		*speed, 1, 10,
	)
	rl.DrawText(fmt.Sprintf("%dx", int(*speed)), int32(x+158), int32(y+2), 14, rl.RayWhite)
	y += 28

	if gui.Button(rl.Rectangle{X: x, Y: y, Width: 90, Height: 24}, pauseLabel(*paused)) {
		*paused = !*paused
	}
	rl.DrawText("click: obstacle", int32(x+100), int32(y+6), 12, rl.Gray)
}

func pauseLabel(paused bool) string {
	if paused {
		return "Resume"
	}
	return "Pause"
}
