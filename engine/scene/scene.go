package scene

import (
	"github.com/spaghettifunk/anima-rt/engine/math"
)

/**
 * @brief The scene graph: models, their placements, animation paths,
 * cameras and lights. Model order is insertion order and defines the
 * instance enumeration order of everything built from the scene.
 */
type Scene struct {
	models       []*Model
	instances    [][]*ModelInstance
	paths        []*Path
	cameras      []*Camera
	activeCamera int
	lights       []*Light

	extents      math.Extents3D
	extentsDirty bool
}

func New() *Scene {
	return &Scene{
		extents:      math.NewExtentsEmpty(),
		extentsDirty: true,
	}
}

func (s *Scene) ModelIndex(model *Model) (int, bool) {
	for i, m := range s.models {
		if m.ID == model.ID {
			return i, true
		}
	}
	return -1, false
}

// AddModelInstance places instance.Model. The model is appended when
// it is not part of the scene yet. Returns the model index.
func (s *Scene) AddModelInstance(instance *ModelInstance) int {
	idx, ok := s.ModelIndex(instance.Model)
	if !ok {
		s.models = append(s.models, instance.Model)
		s.instances = append(s.instances, nil)
		idx = len(s.models) - 1
	}
	s.instances[idx] = append(s.instances[idx], instance)
	s.extentsDirty = true
	return idx
}

// DeleteModel removes the model and its instances. Paths stop moving
// the removed instances.
func (s *Scene) DeleteModel(index int) {
	for _, instance := range s.instances[index] {
		for _, p := range s.paths {
			p.Detach(instance)
		}
	}
	s.models = append(s.models[:index], s.models[index+1:]...)
	s.instances = append(s.instances[:index], s.instances[index+1:]...)
	s.extentsDirty = true
}

func (s *Scene) ModelCount() int {
	return len(s.models)
}

func (s *Scene) Model(index int) *Model {
	return s.models[index]
}

func (s *Scene) ModelInstanceCount(model int) int {
	return len(s.instances[model])
}

func (s *Scene) ModelInstance(model, instance int) *ModelInstance {
	return s.instances[model][instance]
}

func (s *Scene) AddPath(p *Path) {
	s.paths = append(s.paths, p)
}

func (s *Scene) PathCount() int {
	return len(s.paths)
}

func (s *Scene) Path(index int) *Path {
	return s.paths[index]
}

func (s *Scene) AddCamera(c *Camera) int {
	s.cameras = append(s.cameras, c)
	return len(s.cameras) - 1
}

func (s *Scene) CameraCount() int {
	return len(s.cameras)
}

func (s *Scene) Camera(index int) *Camera {
	return s.cameras[index]
}

func (s *Scene) SetActiveCamera(index int) {
	s.activeCamera = index
}

// ActiveCamera returns nil for a scene without cameras.
func (s *Scene) ActiveCamera() *Camera {
	if s.activeCamera < 0 || s.activeCamera >= len(s.cameras) {
		return nil
	}
	return s.cameras[s.activeCamera]
}

func (s *Scene) AddLight(l *Light) {
	s.lights = append(s.lights, l)
}

func (s *Scene) Lights() []*Light {
	return s.lights
}

/**
 * @brief Update animates every path to time t, then commits the world
 * matrices of all instances. Returns true when any object moved; moved
 * instances mark the scene extents dirty.
 */
func (s *Scene) Update(t float64) bool {
	if c := s.ActiveCamera(); c != nil {
		c.BeginFrame()
	}

	changed := false
	for _, p := range s.paths {
		if p.Animate(t) {
			changed = true
		}
	}
	for _, list := range s.instances {
		for _, mi := range list {
			if mi.commit() {
				s.extentsDirty = true
				changed = true
			}
		}
	}
	return changed
}

func (s *Scene) ExtentsDirty() bool {
	return s.extentsDirty
}

// Extents returns the world bounds of every model instance.
func (s *Scene) Extents() math.Extents3D {
	if s.extentsDirty {
		e := math.NewExtentsEmpty()
		for _, list := range s.instances {
			for _, mi := range list {
				e = e.Union(mi.Bounds())
			}
		}
		s.extents = e
		s.extentsDirty = false
	}
	return s.extents
}
