// Package arena is the two-dimensional world that scores controllers. Robots
// steered by a network chase their own target among obstacles; a trial ends
// when every robot has reached its target.
package arena

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"

	"robosim/internal/config"
	"robosim/internal/nn"
)

var (
	ErrNoOpenLocation  = errors.New("no open location")
	ErrControllerShape = errors.New("controller has the wrong shape")
	ErrOutsideArena    = errors.New("position is outside the arena")
)

// Controller widths: six sensor readings in, two wheel speeds out.
const (
	ControllerInputs  = 6
	ControllerOutputs = 2
)

type Kind int

const (
	KindRobot Kind = iota
	KindObstacle
	KindTarget
)

func (k Kind) String() string {
	switch k {
	case KindRobot:
		return "robot"
	case KindObstacle:
		return "obstacle"
	case KindTarget:
		return "target"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

type Vec struct {
	X, Y float64
}

// Body is a circle in the arena. Heading is in degrees; 0 points along +y and
// 90 along +x.
type Body struct {
	ID      int
	Kind    Kind
	Pos     Vec
	Heading float64
	Speed   float64
	Radius  float64
	Hitable bool

	pair    *pursuit
	removed bool
}

// pursuit links a network-driven robot with the target it chases.
type pursuit struct {
	robot  *Body
	target *Body
	net    *nn.Network
	pause  int
}

// TrialHandle identifies the bodies added by AddController.
type TrialHandle struct {
	Robot  int
	Target int
}

type World struct {
	cfg    config.ArenaConfig
	width  float64
	height float64
	rng    *rand.Rand
	noise  opensimplex.Noise

	bodies  []*Body
	pursued []*pursuit
	nextID  int
	tick    int
}

// NewWorld creates an empty world. All randomness, including sensor noise,
// derives from seed.
func NewWorld(cfg config.ArenaConfig, seed int64) *World {
	w := &World{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
	}
	if cfg.SensorNoise > 0 {
		w.noise = opensimplex.New(seed)
	}
	w.ResetWorld()
	return w
}

// ResetWorld removes every body and restores the configured size.
func (w *World) ResetWorld() {
	w.width = w.cfg.Width
	w.height = w.cfg.Height
	w.bodies = nil
	w.pursued = nil
	w.nextID = 0
	w.tick = 0
}

// Load resets the world to a fixed layout.
func (w *World) Load(layout Layout) error {
	w.ResetWorld()
	if layout.Width > 0 {
		w.width = layout.Width
	}
	if layout.Height > 0 {
		w.height = layout.Height
	}
	for i, c := range layout.Obstacles {
		if c.Radius <= 0 {
			return fmt.Errorf("layout %s obstacle %d: radius must be positive", layout.Name, i)
		}
		if !w.inside(Vec{c.X, c.Y}) {
			return fmt.Errorf("layout %s obstacle %d: %w", layout.Name, i, ErrOutsideArena)
		}
		b := w.add(KindObstacle, Vec{c.X, c.Y}, c.Radius, true)
		b.Heading = normalizeDegrees(c.Heading)
		b.Speed = c.Speed
	}
	return nil
}

func (w *World) Size() (float64, float64) {
	return w.width, w.height
}

func (w *World) Tick() int {
	return w.tick
}

// Pursuing is the number of robots that have not reached their target.
func (w *World) Pursuing() int {
	return len(w.pursued)
}

// Bodies returns a snapshot of the live bodies in id order.
func (w *World) Bodies() []Body {
	out := make([]Body, 0, len(w.bodies))
	for _, b := range w.bodies {
		if !b.removed {
			snapshot := *b
			snapshot.pair = nil
			out = append(out, snapshot)
		}
	}
	return out
}

// AddObstacle places a static obstacle of random radius at an open location.
func (w *World) AddObstacle() (int, error) {
	lo, hi := w.cfg.ObstacleMinRadius, w.cfg.ObstacleMaxRadius
	var lastErr error
	for attempt := 0; attempt < w.cfg.PlacementRetries; attempt++ {
		radius := lo + w.rng.Float64()*(hi-lo)
		pos, err := w.openLocation(radius, 1)
		if err != nil {
			lastErr = err
			continue
		}
		return w.add(KindObstacle, pos, radius, true).ID, nil
	}
	if lastErr == nil {
		lastErr = ErrNoOpenLocation
	}
	return -1, lastErr
}

// AddController spawns a robot driven by net and its target, both at random
// open locations.
func (w *World) AddController(net *nn.Network) (TrialHandle, error) {
	if err := CheckController(net); err != nil {
		return TrialHandle{}, err
	}
	targetPos, err := w.openLocation(w.cfg.TargetRadius, w.cfg.PlacementRetries)
	if err != nil {
		return TrialHandle{}, err
	}
	target := w.add(KindTarget, targetPos, w.cfg.TargetRadius, false)
	robotPos, err := w.openLocation(w.cfg.RobotRadius, w.cfg.PlacementRetries)
	if err != nil {
		target.removed = true
		w.compact()
		return TrialHandle{}, err
	}
	robot := w.add(KindRobot, robotPos, w.cfg.RobotRadius, w.cfg.RobotsHitable)
	return w.pair(net, robot, target, w.cfg.TargetSpeed), nil
}

// AddControllerAt spawns a robot and its target at fixed spots.
func (w *World) AddControllerAt(net *nn.Network, robotAt, targetAt Spot, targetSpeed float64) (TrialHandle, error) {
	if err := CheckController(net); err != nil {
		return TrialHandle{}, err
	}
	if !w.inside(Vec{robotAt.X, robotAt.Y}) || !w.inside(Vec{targetAt.X, targetAt.Y}) {
		return TrialHandle{}, ErrOutsideArena
	}
	target := w.add(KindTarget, Vec{targetAt.X, targetAt.Y}, w.cfg.TargetRadius, false)
	target.Heading = normalizeDegrees(targetAt.Heading)
	robot := w.add(KindRobot, Vec{robotAt.X, robotAt.Y}, w.cfg.RobotRadius, w.cfg.RobotsHitable)
	handle := w.pair(net, robot, target, targetSpeed)
	robot.Heading = normalizeDegrees(robotAt.Heading)
	return handle, nil
}

// CheckController verifies that net can be driven by the arena sensors.
func CheckController(net *nn.Network) error {
	if net == nil {
		return fmt.Errorf("%w: no network", ErrControllerShape)
	}
	if in, out := len(net.Inputs()), len(net.Outputs()); in != ControllerInputs || out < ControllerOutputs {
		return fmt.Errorf("%w: %d inputs and %d outputs, want %d and at least %d",
			ErrControllerShape, in, out, ControllerInputs, ControllerOutputs)
	}
	return nil
}

func (w *World) pair(net *nn.Network, robot, target *Body, targetSpeed float64) TrialHandle {
	p := &pursuit{robot: robot, target: target, net: net}
	robot.pair = p
	target.pair = p
	robot.Heading = float64(w.rng.Intn(360))
	robot.Speed = w.cfg.RobotInitialSpeed
	target.Speed = targetSpeed
	w.pursued = append(w.pursued, p)
	return TrialHandle{Robot: robot.ID, Target: target.ID}
}

func (w *World) add(kind Kind, pos Vec, radius float64, hitable bool) *Body {
	b := &Body{
		ID:      w.nextID,
		Kind:    kind,
		Pos:     pos,
		Heading: float64(w.rng.Intn(360)),
		Radius:  radius,
		Hitable: hitable,
	}
	w.nextID++
	w.bodies = append(w.bodies, b)
	return b
}

func (w *World) openLocation(radius float64, attempts int) (Vec, error) {
	spanX, spanY := w.width-2*radius, w.height-2*radius
	if spanX <= 0 || spanY <= 0 {
		return Vec{}, ErrNoOpenLocation
	}
	for i := 0; i < attempts; i++ {
		pos := Vec{radius + w.rng.Float64()*spanX, radius + w.rng.Float64()*spanY}
		if w.touchingAny(pos, radius, nil, false) == nil {
			return pos, nil
		}
	}
	return Vec{}, ErrNoOpenLocation
}

func (w *World) inside(p Vec) bool {
	return p.X >= 0 && p.Y >= 0 && p.X <= w.width && p.Y <= w.height
}

// StepWorld advances every body by one tick and reports whether any robot is
// still pursuing its target.
func (w *World) StepWorld() bool {
	w.tick++
	for _, b := range append([]*Body(nil), w.bodies...) {
		if b.removed {
			continue
		}
		if b.Kind == KindRobot && b.pair != nil {
			w.steer(b.pair)
		}
		w.move(b)
	}
	w.compact()
	return len(w.pursued) > 0
}

func (w *World) steer(p *pursuit) {
	left, right := 0.0, 0.0
	out, err := p.net.Compute(w.senseAll(p))
	if err == nil {
		left = clamp(out[0]*w.cfg.SpeedScale, w.cfg.RobotMinSpeed, w.cfg.RobotMaxSpeed)
		right = clamp(out[1]*w.cfg.SpeedScale, w.cfg.RobotMinSpeed, w.cfg.RobotMaxSpeed)
	}
	if p.pause > 0 {
		p.robot.Speed = 0
		p.pause--
	} else {
		p.robot.Speed = (left + right) / 2
	}
	turn := clamp((left-right)*w.cfg.RotationScale, -w.cfg.MaxRotation, w.cfg.MaxRotation)
	p.robot.Heading = normalizeDegrees(p.robot.Heading + turn)
}

func (w *World) move(b *Body) {
	if b.Speed <= 0 {
		return
	}
	rad := b.Heading * math.Pi / 180
	dist := b.Speed / w.cfg.TicksPerSecond
	next := Vec{b.Pos.X + dist*math.Sin(rad), b.Pos.Y + dist*math.Cos(rad)}

	if p := b.pair; p != nil {
		partner := p.target
		if b == p.target {
			partner = p.robot
		}
		if touching(next, b.Radius, partner.Pos, partner.Radius) {
			w.finish(p)
			return
		}
	}
	if w.touchingWall(next, b.Radius) {
		w.bounce(b, false)
		return
	}
	if other := w.touchingAny(next, b.Radius, b, true); other != nil {
		w.bounce(b, false)
		if b.Hitable {
			w.bounce(other, true)
		}
		return
	}
	b.Pos = next
}

// bounce turns a body away after a collision. Robots also pause briefly.
func (w *World) bounce(b *Body, wasHit bool) {
	if b.Kind == KindObstacle && b.Speed == 0 {
		return
	}
	angle := w.cfg.ReorientAngle
	if wasHit {
		angle = -angle
	}
	b.Heading = normalizeDegrees(b.Heading + angle)
	if b.Kind == KindRobot && b.pair != nil {
		b.pair.pause = w.cfg.PostCollisionPause
	}
}

func (w *World) finish(p *pursuit) {
	p.robot.removed = true
	p.target.removed = true
	for i, q := range w.pursued {
		if q == p {
			w.pursued = append(w.pursued[:i], w.pursued[i+1:]...)
			break
		}
	}
}

func (w *World) compact() {
	live := w.bodies[:0]
	for _, b := range w.bodies {
		if !b.removed {
			live = append(live, b)
		}
	}
	for i := len(live); i < len(w.bodies); i++ {
		w.bodies[i] = nil
	}
	w.bodies = live
}

func (w *World) touchingWall(p Vec, r float64) bool {
	return p.X-r <= 0 || p.Y-r <= 0 || p.X+r >= w.width || p.Y+r >= w.height
}

// touchingAny returns the first live body other than self that overlaps the
// circle at p, skipping bodies that cannot be hit when hitableOnly is set.
func (w *World) touchingAny(p Vec, r float64, self *Body, hitableOnly bool) *Body {
	for _, b := range w.bodies {
		if b == self || b.removed || (hitableOnly && !b.Hitable) {
			continue
		}
		if touching(p, r, b.Pos, b.Radius) {
			return b
		}
	}
	return nil
}

func touching(a Vec, ar float64, b Vec, br float64) bool {
	dx, dy := a.X-b.X, a.Y-b.Y
	reach := ar + br
	return dx*dx+dy*dy < reach*reach
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func normalizeDegrees(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}
