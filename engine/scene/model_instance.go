package scene

import (
	"github.com/google/uuid"

	"github.com/spaghettifunk/anima-rt/engine/math"
)

/**
 * @brief A placement of a model in the scene. Every scene update
 * commits the current world matrix; the one committed by the update
 * before is the previous world matrix.
 */
type ModelInstance struct {
	ID        uuid.UUID
	Name      string
	Model     *Model
	Transform *math.Transform

	prevWorld math.Mat4
	committed math.Mat4
}

func NewModelInstance(model *Model, name string, transform *math.Transform) *ModelInstance {
	if transform == nil {
		transform = math.TransformCreate()
	}
	mi := &ModelInstance{
		ID:        uuid.New(),
		Name:      name,
		Model:     model,
		Transform: transform,
	}
	mi.prevWorld = mi.World()
	mi.committed = mi.prevWorld
	return mi
}

func (mi *ModelInstance) World() math.Mat4 {
	return mi.Transform.GetWorld()
}

func (mi *ModelInstance) PrevWorld() math.Mat4 {
	return mi.prevWorld
}

func (mi *ModelInstance) ObjectID() uuid.UUID {
	return mi.ID
}

func (mi *ModelInstance) Move(position math.Vec3, rotation math.Quaternion, scale math.Vec3) {
	mi.Transform.SetPositionRotationScale(position, rotation, scale)
}

// commit rolls the committed world matrix into the previous one and
// reports whether the instance moved since the last commit.
func (mi *ModelInstance) commit() bool {
	mi.prevWorld = mi.committed
	mi.committed = mi.World()
	return !mi.prevWorld.Compare(mi.committed, 0)
}

// Bounds returns the world space bounds of the placed model.
func (mi *ModelInstance) Bounds() math.Extents3D {
	return mi.Model.Bounds().Transform(mi.World())
}
