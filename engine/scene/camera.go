package scene

import (
	"github.com/google/uuid"

	"github.com/spaghettifunk/anima-rt/engine/math"
)

/** @brief The name of the default camera. */
const DefaultCameraName string = "default"

/**
 * @brief A perspective camera. The view matrix is rebuilt lazily when
 * position or target change; the previous frame's view projection is
 * kept for motion vectors.
 */
type Camera struct {
	ID       uuid.UUID
	Name     string
	Position math.Vec3
	Target   math.Vec3
	Up       math.Vec3

	FovY        float32
	AspectRatio float32
	NearClip    float32
	FarClip     float32

	IsDirty      bool
	viewMatrix   math.Mat4
	prevViewProj math.Mat4
}

func NewCamera(name string) *Camera {
	c := &Camera{
		ID:   uuid.New(),
		Name: name,
	}
	c.Reset()
	return c
}

func (c *Camera) Reset() {
	c.Position = math.NewVec3(0, 0, 5)
	c.Target = math.NewVec3Zero()
	c.Up = math.NewVec3(0, 1, 0)
	c.FovY = math.DegToRad(45)
	c.AspectRatio = 16.0 / 9.0
	c.NearClip = 0.1
	c.FarClip = 1000
	c.IsDirty = true
	c.prevViewProj = c.GetViewProjection()
}

func (c *Camera) SetPosition(position math.Vec3) {
	c.Position = position
	c.IsDirty = true
}

func (c *Camera) SetTarget(target math.Vec3) {
	c.Target = target
	c.IsDirty = true
}

func (c *Camera) GetView() math.Mat4 {
	if c.IsDirty {
		c.viewMatrix = math.NewMat4LookAt(c.Position, c.Target, c.Up)
		c.IsDirty = false
	}
	return c.viewMatrix
}

func (c *Camera) GetProjection() math.Mat4 {
	return math.NewMat4Perspective(c.FovY, c.AspectRatio, c.NearClip, c.FarClip)
}

func (c *Camera) GetViewProjection() math.Mat4 {
	return c.GetView().Mul(c.GetProjection())
}

func (c *Camera) GetPrevViewProjection() math.Mat4 {
	return c.prevViewProj
}

// BeginFrame stores the current view projection as the previous one.
func (c *Camera) BeginFrame() {
	c.prevViewProj = c.GetViewProjection()
}

func (c *Camera) ObjectID() uuid.UUID {
	return c.ID
}

// Move is driven by paths: the position follows the keyframe and the
// camera keeps looking along the keyframe rotation.
func (c *Camera) Move(position math.Vec3, rotation math.Quaternion, scale math.Vec3) {
	forward := rotation.ToMat4().TransformPoint(math.NewVec3(0, 0, -1))
	c.Position = position
	c.Target = position.Add(forward)
	c.IsDirty = true
}
