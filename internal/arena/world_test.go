package arena

import (
	"errors"
	"math"
	"testing"

	"robosim/internal/config"
	"robosim/internal/nn"
)

func testArena() config.ArenaConfig {
	cfg := config.Default().Arena
	cfg.SensorNoise = 0
	cfg.LayoutsDir = ""
	return cfg
}

// constantController ignores its sensors and drives the wheels with fixed
// outputs.
func constantController(t *testing.T, left, right float64) *nn.Network {
	t.Helper()
	nodes := make([]*nn.Node, 0, ControllerInputs+ControllerOutputs)
	inputs := make([]int, 0, ControllerInputs)
	for i := 0; i < ControllerInputs; i++ {
		nodes = append(nodes, &nn.Node{ID: i, IsInput: true})
		inputs = append(inputs, i)
	}
	nodes = append(nodes,
		&nn.Node{ID: 6, IsOutput: true, Baseline: left},
		&nn.Node{ID: 7, IsOutput: true, Baseline: right},
	)
	net, err := nn.NewNetwork(inputs, []int{6, 7}, nodes)
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	return net
}

func TestRobotReachesTargetAhead(t *testing.T) {
	w := NewWorld(testArena(), 1)
	handle, err := w.AddControllerAt(constantController(t, 1, 1), Spot{X: 100, Y: 100, Heading: 90}, Spot{X: 200, Y: 100}, 0)
	if err != nil {
		t.Fatalf("add controller: %v", err)
	}
	if handle.Target != 0 || handle.Robot != 1 {
		t.Fatalf("unexpected handle: %+v", handle)
	}

	steps := 0
	for w.StepWorld() {
		steps++
		if steps > 100 {
			t.Fatal("robot never reached its target")
		}
	}
	steps++
	// 6 units per tick; contact once the gap of 75 is closed.
	if steps != 13 {
		t.Fatalf("expected 13 steps, got %d", steps)
	}
	if w.Pursuing() != 0 || len(w.Bodies()) != 0 {
		t.Fatalf("expected robot and target removed, got %d bodies", len(w.Bodies()))
	}
}

func TestObstacleCollisionReorientsAndPauses(t *testing.T) {
	cfg := testArena()
	w := NewWorld(cfg, 1)
	if err := w.Load(Layout{Name: "wall", Obstacles: []Circle{{X: 150, Y: 100, Radius: 20}}}); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := w.AddControllerAt(constantController(t, 1, 1), Spot{X: 100, Y: 100, Heading: 90}, Spot{X: 700, Y: 500}, 0); err != nil {
		t.Fatalf("add controller: %v", err)
	}

	for i := 0; i < 3; i++ {
		w.StepWorld()
	}
	p := w.pursued[0]
	if p.robot.Pos.X != 112 {
		t.Fatalf("expected robot to stop short of the obstacle, x=%f", p.robot.Pos.X)
	}
	if p.robot.Heading != 90+cfg.ReorientAngle {
		t.Fatalf("expected reorientation, heading=%f", p.robot.Heading)
	}
	if p.pause != cfg.PostCollisionPause {
		t.Fatalf("expected pause %d, got %d", cfg.PostCollisionPause, p.pause)
	}

	w.StepWorld()
	if p.robot.Speed != 0 || p.robot.Pos.X != 112 {
		t.Fatalf("expected paused robot to stand still, speed=%f x=%f", p.robot.Speed, p.robot.Pos.X)
	}
}

func TestBodiesStayInsideArena(t *testing.T) {
	cfg := testArena()
	w := NewWorld(cfg, 42)
	for i := 0; i < 3; i++ {
		if _, err := w.AddController(constantController(t, 1, 0.4)); err != nil {
			t.Fatalf("add controller: %v", err)
		}
	}
	for i := 0; i < 4; i++ {
		if _, err := w.AddObstacle(); err != nil {
			t.Fatalf("add obstacle: %v", err)
		}
	}

	for step := 0; step < 500 && w.StepWorld(); step++ {
		for _, b := range w.Bodies() {
			if b.Pos.X-b.Radius < 0 || b.Pos.Y-b.Radius < 0 || b.Pos.X+b.Radius > cfg.Width || b.Pos.Y+b.Radius > cfg.Height {
				t.Fatalf("step %d: %s %d left the arena at %+v", step, b.Kind, b.ID, b.Pos)
			}
		}
		for _, p := range w.pursued {
			for i, v := range w.senseAll(p) {
				limit := 1.0
				if i >= ChannelTargetLeft {
					limit = cfg.TargetSensorScale
				}
				if v < 0 || v > limit || math.IsNaN(v) {
					t.Fatalf("step %d: reading %d out of range: %f", step, i, v)
				}
			}
		}
	}
}

func TestPlacementFailsInCrampedArena(t *testing.T) {
	cfg := testArena()
	cfg.Width, cfg.Height = 20, 20
	cfg.PlacementRetries = 10
	w := NewWorld(cfg, 1)
	if _, err := w.AddController(constantController(t, 0, 0)); !errors.Is(err, ErrNoOpenLocation) {
		t.Fatalf("expected no open location, got %v", err)
	}
	if _, err := w.AddObstacle(); !errors.Is(err, ErrNoOpenLocation) {
		t.Fatalf("expected no open location for obstacle, got %v", err)
	}
	if len(w.Bodies()) != 0 {
		t.Fatalf("failed placement left %d bodies behind", len(w.Bodies()))
	}
}

func TestAddControllerRejectsWrongShape(t *testing.T) {
	net, err := nn.NewNetwork([]int{0}, []int{1}, []*nn.Node{
		{ID: 0, IsInput: true},
		{ID: 1, IsOutput: true, Inputs: []nn.Link{{From: 0, Weight: 1}}},
	})
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	w := NewWorld(testArena(), 1)
	if _, err := w.AddController(net); !errors.Is(err, ErrControllerShape) {
		t.Fatalf("expected controller shape error, got %v", err)
	}
	if _, err := w.AddControllerAt(constantController(t, 0, 0), Spot{X: -5, Y: 10}, Spot{X: 50, Y: 50}, 0); !errors.Is(err, ErrOutsideArena) {
		t.Fatalf("expected outside arena error, got %v", err)
	}
}

func TestSensorGeometry(t *testing.T) {
	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{name: "falloff-centre", got: falloff(0, 90), want: 1},
		{name: "falloff-edge", got: falloff(45, 90), want: math.Exp(-3)},
		{name: "bearing-left", got: relativeBearing(350, 10), want: -20},
		{name: "bearing-right", got: relativeBearing(10, 350), want: 20},
		{name: "wall-east", got: wallDistance(Vec{100, 100}, 90, 800, 600), want: 700},
		{name: "wall-north", got: wallDistance(Vec{100, 100}, 0, 800, 600), want: 500},
		{name: "wall-south", got: wallDistance(Vec{100, 100}, 180, 800, 600), want: 100},
		{name: "wall-outside", got: wallDistance(Vec{-1, 100}, 0, 800, 600), want: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if math.Abs(tc.got-tc.want) > 1e-9 {
				t.Fatalf("got %f want %f", tc.got, tc.want)
			}
		})
	}
}

func TestTargetSensorSeesOnlyOwnTarget(t *testing.T) {
	net := constantController(t, 0, 0)
	alone := NewWorld(testArena(), 1)
	if _, err := alone.AddControllerAt(net, Spot{X: 400, Y: 300}, Spot{X: 700, Y: 550}, 0); err != nil {
		t.Fatalf("add alone: %v", err)
	}
	crowded := NewWorld(testArena(), 1)
	if _, err := crowded.AddControllerAt(net, Spot{X: 400, Y: 300}, Spot{X: 700, Y: 550}, 0); err != nil {
		t.Fatalf("add first: %v", err)
	}
	// A foreign target directly ahead of the first robot.
	if _, err := crowded.AddControllerAt(net, Spot{X: 100, Y: 100}, Spot{X: 400, Y: 340}, 0); err != nil {
		t.Fatalf("add second: %v", err)
	}

	want := alone.senseAll(alone.pursued[0])
	got := crowded.senseAll(crowded.pursued[0])
	for _, ch := range []int{ChannelTargetLeft, ChannelTargetRight} {
		if got[ch] != want[ch] {
			t.Fatalf("channel %d reacts to a foreign target: got=%f want=%f", ch, got[ch], want[ch])
		}
	}
}
