package scene

import "github.com/spaghettifunk/anima-rt/engine/math"

type LightType uint32

const (
	LightPoint LightType = iota
	LightDirectional
)

type Light struct {
	Name      string
	Type      LightType
	Position  math.Vec3
	Direction math.Vec3
	Intensity math.Vec3
}
