package arena

import "math"

// Sensor channels in the order the controller receives them.
const (
	ChannelRobotLeft = iota
	ChannelRobotRight
	ChannelObstacleLeft
	ChannelObstacleRight
	ChannelTargetLeft
	ChannelTargetRight
)

const noiseScale = 0.01

// eye is a sensor mounted on a robot, placed relative to the robot centre
// with an orientation relative to the robot heading.
type eye struct {
	offset Vec
	angle  float64
}

func (w *World) eyes() [2]eye {
	return [2]eye{
		{offset: Vec{-w.cfg.SensorOffsetX, w.cfg.SensorOffsetY}, angle: -w.cfg.SensorAngle},
		{offset: Vec{w.cfg.SensorOffsetX, w.cfg.SensorOffsetY}, angle: w.cfg.SensorAngle},
	}
}

// place returns the absolute position and heading of e on a robot.
func (e eye) place(robot *Body) (Vec, float64) {
	rad := robot.Heading * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	pos := Vec{
		X: robot.Pos.X + cos*e.offset.X + sin*e.offset.Y,
		Y: robot.Pos.Y - sin*e.offset.X + cos*e.offset.Y,
	}
	return pos, normalizeDegrees(robot.Heading + e.angle)
}

// senseAll fills the controller input vector for p.
func (w *World) senseAll(p *pursuit) []float64 {
	readings := make([]float64, ControllerInputs)
	for side, e := range w.eyes() {
		pos, heading := e.place(p.robot)
		readings[ChannelRobotLeft+side] = w.sense(pos, heading, ChannelRobotLeft+side, false, func(b *Body) bool {
			return b.Kind == KindRobot && b != p.robot
		})
		readings[ChannelObstacleLeft+side] = w.sense(pos, heading, ChannelObstacleLeft+side, true, func(b *Body) bool {
			return b.Kind == KindObstacle
		})
		readings[ChannelTargetLeft+side] = w.cfg.TargetSensorScale * w.sense(pos, heading, ChannelTargetLeft+side, false, func(b *Body) bool {
			return b == p.target
		})
	}
	return readings
}

// sense sums the signal of every matching body as seen from pos looking
// along heading. Signal falls off with the square of the distance and with
// the bearing relative to the view angle. The result is clamped to [0, 1].
func (w *World) sense(pos Vec, heading float64, channel int, walls bool, match func(*Body) bool) float64 {
	strength := 0.0
	for _, b := range w.bodies {
		if b.removed || !match(b) {
			continue
		}
		dx, dy := b.Pos.X-pos.X, b.Pos.Y-pos.Y
		bearing := relativeBearing(math.Atan2(dx, dy)*180/math.Pi, heading)
		strength += falloff(bearing, w.cfg.SensorViewAngle) / math.Max(dx*dx+dy*dy, 1)
	}
	if walls {
		d := math.Max(wallDistance(pos, heading, w.width, w.height), 1)
		strength += w.cfg.WallObstacleScale / (d * d)
	}
	strength *= w.cfg.SensorScale
	if w.noise != nil {
		jitter := w.noise.Eval3(pos.X*noiseScale, pos.Y*noiseScale, float64(w.tick)*0.1+float64(channel)*100)
		strength += w.cfg.SensorNoise * jitter
	}
	return clamp(strength, 0, 1)
}

// falloff weighs a bearing in degrees against the sensor view angle.
func falloff(bearing, view float64) float64 {
	x := 2 * bearing / view
	return math.Exp(-3 * x * x)
}

// relativeBearing maps an absolute bearing into (-180, 180] around heading.
func relativeBearing(bearing, heading float64) float64 {
	d := normalizeDegrees(bearing - heading)
	if d > 180 {
		d -= 360
	}
	return d
}

// wallDistance is the length of the ray from pos along heading to the arena
// boundary. Points outside the arena report zero.
func wallDistance(pos Vec, heading, width, height float64) float64 {
	if pos.X <= 0 || pos.Y <= 0 || pos.X >= width || pos.Y >= height {
		return 0
	}
	rad := heading * math.Pi / 180
	dx, dy := math.Sin(rad), math.Cos(rad)
	best := math.Inf(1)
	if dx > 1e-12 {
		best = math.Min(best, (width-pos.X)/dx)
	} else if dx < -1e-12 {
		best = math.Min(best, -pos.X/dx)
	}
	if dy > 1e-12 {
		best = math.Min(best, (height-pos.Y)/dy)
	} else if dy < -1e-12 {
		best = math.Min(best, -pos.Y/dy)
	}
	return best
}
