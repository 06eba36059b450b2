package scene

import (
	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/anima-rt/engine/math"
)

// Movable objects can be driven by a path.
type Movable interface {
	ObjectID() uuid.UUID
	Move(position math.Vec3, rotation math.Quaternion, scale math.Vec3)
}

type Keyframe struct {
	Time     float64
	Position math.Vec3
	Rotation math.Quaternion
	Scale    math.Vec3
}

/**
 * @brief An animation path: keyframes interpolated over time, applied
 * to every attached object.
 */
type Path struct {
	Name      string
	Loop      bool
	keyframes []Keyframe
	objects   []Movable
	lastTime  float64
	animated  bool
}

func NewPath(name string, loop bool) *Path {
	return &Path{Name: name, Loop: loop}
}

// AddKeyframe inserts a keyframe keeping them sorted by time.
func (p *Path) AddKeyframe(k Keyframe) {
	if k.Scale == (math.Vec3{}) {
		k.Scale = math.NewVec3One()
	}
	if k.Rotation == (math.Quaternion{}) {
		k.Rotation = math.NewQuatIdentity()
	}
	i, _ := slices.BinarySearchFunc(p.keyframes, k.Time, func(e Keyframe, t float64) int {
		switch {
		case e.Time < t:
			return -1
		case e.Time > t:
			return 1
		}
		return 0
	})
	p.keyframes = slices.Insert(p.keyframes, i, k)
	p.animated = false
}

func (p *Path) KeyframeCount() int {
	return len(p.keyframes)
}

func (p *Path) Attach(obj Movable) {
	for _, o := range p.objects {
		if o.ObjectID() == obj.ObjectID() {
			return
		}
	}
	p.objects = append(p.objects, obj)
}

func (p *Path) Detach(obj Movable) {
	p.objects = slices.DeleteFunc(p.objects, func(o Movable) bool {
		return o.ObjectID() == obj.ObjectID()
	})
}

func (p *Path) AttachedObjects() []Movable {
	return p.objects
}

func (p *Path) duration() float64 {
	if len(p.keyframes) == 0 {
		return 0
	}
	return p.keyframes[len(p.keyframes)-1].Time - p.keyframes[0].Time
}

// Sample returns the interpolated keyframe at time t.
func (p *Path) Sample(t float64) Keyframe {
	if len(p.keyframes) == 1 {
		return p.keyframes[0]
	}
	first := p.keyframes[0]
	last := p.keyframes[len(p.keyframes)-1]
	if d := p.duration(); p.Loop && d > 0 {
		for t > last.Time {
			t -= d
		}
	}
	if t <= first.Time {
		return first
	}
	if t >= last.Time {
		return last
	}
	for i := 1; i < len(p.keyframes); i++ {
		b := p.keyframes[i]
		if t > b.Time {
			continue
		}
		a := p.keyframes[i-1]
		f := float32((t - a.Time) / (b.Time - a.Time))
		return Keyframe{
			Time:     t,
			Position: a.Position.Lerp(b.Position, f),
			Rotation: a.Rotation.Slerp(b.Rotation, f),
			Scale:    a.Scale.Lerp(b.Scale, f),
		}
	}
	return last
}

// Animate moves the attached objects. It reports whether anything moved.
func (p *Path) Animate(t float64) bool {
	if len(p.keyframes) == 0 || len(p.objects) == 0 {
		return false
	}
	if p.animated && t == p.lastTime {
		return false
	}
	if p.animated && !p.Loop && len(p.keyframes) > 0 {
		end := p.keyframes[len(p.keyframes)-1].Time
		if p.lastTime >= end && t >= end {
			return false
		}
	}
	k := p.Sample(t)
	for _, o := range p.objects {
		o.Move(k.Position, k.Rotation, k.Scale)
	}
	p.lastTime = t
	p.animated = true
	return true
}
