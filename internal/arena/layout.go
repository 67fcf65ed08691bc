package arena

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Names of the fixed layouts used by the battery.
const (
	LayoutMaze       = "maze"
	LayoutObstacles1 = "obstacles1"
	LayoutObstacles2 = "obstacles2"
)

// Layout is a fixed arena: its size, static obstacles and, for layouts that
// pin the controller, where the robot and its target start.
type Layout struct {
	Name      string   `yaml:"name"`
	Width     float64  `yaml:"width"`
	Height    float64  `yaml:"height"`
	Obstacles []Circle `yaml:"obstacles"`
	Robot     *Spot    `yaml:"robot,omitempty"`
	Target    *Spot    `yaml:"target,omitempty"`
}

type Circle struct {
	X       float64 `yaml:"x"`
	Y       float64 `yaml:"y"`
	Radius  float64 `yaml:"radius"`
	Heading float64 `yaml:"heading,omitempty"`
	Speed   float64 `yaml:"speed,omitempty"`
}

type Spot struct {
	X       float64 `yaml:"x"`
	Y       float64 `yaml:"y"`
	Heading float64 `yaml:"heading"`
}

// Layouts is the set of fixed arenas the battery runs.
type Layouts struct {
	Maze      Layout
	Obstacles []Layout
}

// BuiltinLayouts returns the layouts compiled into the binary.
func BuiltinLayouts() Layouts {
	return Layouts{
		Maze:      mazeLayout(),
		Obstacles: []Layout{scatterLayout(), staggerLayout()},
	}
}

// LoadLayouts starts from the built-in layouts and replaces each one that has
// a <name>.yaml file in dir. An empty dir keeps the built-ins.
func LoadLayouts(dir string) (Layouts, error) {
	layouts := BuiltinLayouts()
	if dir == "" {
		return layouts, nil
	}
	targets := map[string]*Layout{
		LayoutMaze:       &layouts.Maze,
		LayoutObstacles1: &layouts.Obstacles[0],
		LayoutObstacles2: &layouts.Obstacles[1],
	}
	for _, name := range []string{LayoutMaze, LayoutObstacles1, LayoutObstacles2} {
		path := filepath.Join(dir, name+".yaml")
		loaded, err := ReadLayout(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return Layouts{}, err
		}
		if loaded.Name == "" {
			loaded.Name = name
		}
		*targets[name] = loaded
	}
	if layouts.Maze.Robot == nil || layouts.Maze.Target == nil {
		return Layouts{}, fmt.Errorf("layout %s: robot and target spots are required", layouts.Maze.Name)
	}
	return layouts, nil
}

// ReadLayout decodes one YAML layout file. Unknown keys are rejected.
func ReadLayout(path string) (Layout, error) {
	f, err := os.Open(path)
	if err != nil {
		return Layout{}, err
	}
	defer f.Close()

	var layout Layout
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&layout); err != nil && !errors.Is(err, io.EOF) {
		return Layout{}, fmt.Errorf("decode layout %s: %w", path, err)
	}
	return layout, nil
}

const (
	layoutWidth  = 800
	layoutHeight = 600
)

// mazeLayout builds two barriers with gaps at opposite ends. The robot starts
// below the first barrier and the target sits above the second.
func mazeLayout() Layout {
	var obstacles []Circle
	obstacles = append(obstacles, wall(212, 788, 200, 12)...)
	obstacles = append(obstacles, wall(12, 588, 400, 12)...)
	return Layout{
		Name:      LayoutMaze,
		Width:     layoutWidth,
		Height:    layoutHeight,
		Obstacles: obstacles,
		Robot:     &Spot{X: 649, Y: 93, Heading: 270},
		Target:    &Spot{X: 150, Y: 520},
	}
}

// scatterLayout is a regular grid of large obstacles.
func scatterLayout() Layout {
	var obstacles []Circle
	for _, y := range []float64{150, 300, 450} {
		for _, x := range []float64{160, 320, 480, 640} {
			obstacles = append(obstacles, Circle{X: x, Y: y, Radius: 30})
		}
	}
	return Layout{Name: LayoutObstacles1, Width: layoutWidth, Height: layoutHeight, Obstacles: obstacles}
}

// staggerLayout offsets every other row of smaller obstacles.
func staggerLayout() Layout {
	var obstacles []Circle
	for row, y := range []float64{120, 240, 360, 480} {
		shift := float64(row%2) * 75
		for x := 100 + shift; x < layoutWidth-50; x += 150 {
			obstacles = append(obstacles, Circle{X: x, Y: y, Radius: 25})
		}
	}
	return Layout{Name: LayoutObstacles2, Width: layoutWidth, Height: layoutHeight, Obstacles: obstacles}
}

// wall lines up obstacles of radius r along y from x0 to x1.
func wall(x0, x1, y, r float64) []Circle {
	var out []Circle
	for x := x0; x <= x1; x += 2 * r {
		out = append(out, Circle{X: x, Y: y, Radius: r})
	}
	return out
}
