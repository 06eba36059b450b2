package raytracing

import (
	"github.com/google/uuid"

	"github.com/spaghettifunk/anima-rt/engine/scene"
)

/**
 * @brief Maps generic scene objects to their ray tracing counterparts
 * by object id. Models stay registered for the life of the scene,
 * instance mappings only until paths have been retargeted.
 */
type Registry struct {
	models    map[uuid.UUID]*RtModel
	instances map[uuid.UUID]*scene.ModelInstance
}

func NewRegistry() *Registry {
	return &Registry{
		models:    make(map[uuid.UUID]*RtModel),
		instances: make(map[uuid.UUID]*scene.ModelInstance),
	}
}

func (r *Registry) RegisterModel(id uuid.UUID, model *RtModel) {
	r.models[id] = model
}

func (r *Registry) PromotedModel(id uuid.UUID) (*RtModel, bool) {
	m, ok := r.models[id]
	return m, ok
}

func (r *Registry) ForgetModel(id uuid.UUID) {
	delete(r.models, id)
}

func (r *Registry) RegisterInstance(generic uuid.UUID, counterpart *scene.ModelInstance) {
	r.instances[generic] = counterpart
}

func (r *Registry) Counterpart(generic uuid.UUID) (*scene.ModelInstance, bool) {
	mi, ok := r.instances[generic]
	return mi, ok
}

func (r *Registry) InstanceCount() int {
	return len(r.instances)
}

// ForgetInstances drops the generic to ray tracing instance mapping.
func (r *Registry) ForgetInstances() {
	r.instances = make(map[uuid.UUID]*scene.ModelInstance)
}

// Release destroys every promoted model.
func (r *Registry) Release() {
	for id, m := range r.models {
		m.Release()
		delete(r.models, id)
	}
}
