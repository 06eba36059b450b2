package raytracing

import (
	"fmt"

	"github.com/spaghettifunk/anima-rt/engine/config"
	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/math"
	"github.com/spaghettifunk/anima-rt/engine/renderer"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-rt/engine/scene"
)

// SceneOptions controls how models are promoted and structures built.
type SceneOptions struct {
	BuildFlags          metadata.BuildFlags
	MergeStaticMeshes   bool
	AllowRefit          bool
	MaxCachedTLAS       int
	TransientRingSize   int
	ValidateInstanceIDs bool
}

func SceneOptionsFromConfig(cfg *config.Config) (SceneOptions, error) {
	flags, err := cfg.Raytracing.BottomLevelBuildFlags()
	if err != nil {
		return SceneOptions{}, err
	}
	return SceneOptions{
		BuildFlags:          flags,
		MergeStaticMeshes:   cfg.Raytracing.MergeStaticMeshes,
		AllowRefit:          cfg.Raytracing.AllowRefit,
		MaxCachedTLAS:       cfg.Raytracing.MaxCachedTLAS,
		TransientRingSize:   cfg.Raytracing.TransientRingSize,
		ValidateInstanceIDs: cfg.Debug.ValidateInstanceIDs,
	}, nil
}

/**
 * @brief A scene whose models are promoted for ray tracing. Model
 * instances are copies of the generic ones; the registry resolves a
 * generic object to its counterpart once, at the adapter boundary.
 */
type RtScene struct {
	*scene.Scene

	device     renderer.Device
	stream     renderer.CommandStream
	options    SceneOptions
	models     []*RtModel
	registry   *Registry
	transients *TransientPool
	builder    *TopLevelBuilder

	topology        uint64
	indexer         *InstanceIndexer
	indexerTopology uint64
}

func NewRtScene(device renderer.Device, stream renderer.CommandStream, options SceneOptions) *RtScene {
	if options.TransientRingSize <= 0 {
		options.TransientRingSize = 16
	}
	transients := NewTransientPool(device, options.TransientRingSize)
	return &RtScene{
		Scene:      scene.New(),
		device:     device,
		stream:     stream,
		options:    options,
		registry:   NewRegistry(),
		transients: transients,
		builder:    NewTopLevelBuilder(device, stream, transients, options.BuildFlags, options.AllowRefit, options.MaxCachedTLAS, options.ValidateInstanceIDs),
		topology:   1,
	}
}

// CreateFromScene promotes every model instance of src, retargets its
// paths and shares its cameras and lights.
func CreateFromScene(src *scene.Scene, device renderer.Device, stream renderer.CommandStream, options SceneOptions) (*RtScene, error) {
	s := NewRtScene(device, stream, options)
	for m := 0; m < src.ModelCount(); m++ {
		for mi := 0; mi < src.ModelInstanceCount(m); mi++ {
			if _, err := s.AddModelInstance(src.ModelInstance(m, mi)); err != nil {
				s.Release()
				return nil, err
			}
		}
	}
	s.RetargetPaths(src)
	for _, l := range src.Lights() {
		s.AddLight(l)
	}
	for i := 0; i < src.CameraCount(); i++ {
		idx := s.AddCamera(src.Camera(i))
		if src.Camera(i) == src.ActiveCamera() {
			s.SetActiveCamera(idx)
		}
	}
	return s, nil
}

// CreateFromModel builds a scene holding a single instance of model.
func CreateFromModel(model *scene.Model, device renderer.Device, stream renderer.CommandStream, options SceneOptions) (*RtScene, error) {
	s := NewRtScene(device, stream, options)
	if _, err := s.AddModelInstance(scene.NewModelInstance(model, "instance0", nil)); err != nil {
		s.Release()
		return nil, err
	}
	return s, nil
}

/**
 * @brief Adds a ray tracing copy of generic, promoting its model on
 * first use, and records the mapping for path retargeting.
 */
func (s *RtScene) AddModelInstance(generic *scene.ModelInstance) (*scene.ModelInstance, error) {
	rt, ok := s.registry.PromotedModel(generic.Model.ID)
	if !ok {
		var err error
		rt, err = NewRtModel(generic.Model, s.device, s.stream, s.transients, s.options.BuildFlags, s.options.MergeStaticMeshes)
		if err != nil {
			core.LogError(err.Error())
			return nil, err
		}
		s.registry.RegisterModel(generic.Model.ID, rt)
	}

	t := *generic.Transform
	counterpart := scene.NewModelInstance(generic.Model, generic.Name, &t)
	idx := s.Scene.AddModelInstance(counterpart)
	if idx == len(s.models) {
		s.models = append(s.models, rt)
	}
	s.registry.RegisterInstance(generic.ID, counterpart)
	s.topology++
	return counterpart, nil
}

// DeleteModel removes the model at index with all its instances.
func (s *RtScene) DeleteModel(index int) {
	rt := s.models[index]
	s.Scene.DeleteModel(index)
	s.models = append(s.models[:index], s.models[index+1:]...)
	s.registry.ForgetModel(rt.Model.ID)
	s.transients.Retire(rt.Model.Name, s.stream.NextFenceValue(), rt.Release)
	s.topology++
}

/**
 * @brief Moves every object attached to a path of src from the generic
 * instance to its ray tracing counterpart and adopts the path. The
 * instance mapping is dropped afterwards.
 */
func (s *RtScene) RetargetPaths(src *scene.Scene) {
	for i := 0; i < src.PathCount(); i++ {
		p := src.Path(i)
		attached := append([]scene.Movable(nil), p.AttachedObjects()...)
		for _, obj := range attached {
			counterpart, ok := s.registry.Counterpart(obj.ObjectID())
			if !ok {
				continue
			}
			p.Detach(obj)
			p.Attach(counterpart)
		}
		s.AddPath(p)
	}
	s.registry.ForgetInstances()
}

func (s *RtScene) RtModel(model int) *RtModel {
	return s.models[model]
}

func (s *RtScene) MeshCount(model int) int {
	return s.models[model].MeshCount()
}

func (s *RtScene) MeshInstanceCount(model, mesh int) int {
	return s.models[model].MeshInstanceCount(mesh)
}

func (s *RtScene) ModelInstanceWorld(model, instance int) math.Mat4 {
	return s.ModelInstance(model, instance).World()
}

func (s *RtScene) TopologyGeneration() uint64 {
	return s.topology
}

// Indexer returns the instance indexer of the current topology.
func (s *RtScene) Indexer() *InstanceIndexer {
	if s.indexer == nil || s.indexerTopology != s.topology {
		s.indexer = NewInstanceIndexer(s)
		s.indexerTopology = s.topology
	}
	return s.indexer
}

func (s *RtScene) Builder() *TopLevelBuilder {
	return s.builder
}

func (s *RtScene) Transients() *TransientPool {
	return s.transients
}

func (s *RtScene) Device() renderer.Device {
	return s.device
}

func (s *RtScene) Stream() renderer.CommandStream {
	return s.stream
}

/**
 * @brief Animates the scene to time t. Moved instances invalidate the
 * cached top level structures, skinned meshes with new positions are
 * refit. Returns true when anything changed.
 */
func (s *RtScene) Update(t float64) (bool, error) {
	// added or deleted instances bump the topology generation instead
	s.Extents()
	changed := s.Scene.Update(t)

	refit := 0
	for _, m := range s.models {
		n, err := m.RefitSkinned(s.stream, s.transients)
		if err != nil {
			core.LogError(err.Error())
			return changed, fmt.Errorf("refitting '%s': %w", m.Model.Name, err)
		}
		refit += n
	}

	if s.ExtentsDirty() || refit > 0 {
		s.builder.Invalidate()
		if s.options.AllowRefit {
			s.builder.RequestRefit()
		}
		s.Extents()
		changed = true
	}
	s.transients.Collect()
	return changed, nil
}

// TopLevel returns the top level structure for h hit programs.
func (s *RtScene) TopLevel(h uint32) (*metadata.AccelerationStructure, error) {
	tlas, err := s.builder.Build(s, h)
	if err != nil {
		core.LogError(err.Error())
	}
	return tlas, err
}

// GeometryCount is the geometry count of the last built structure.
func (s *RtScene) GeometryCount() uint32 {
	return s.builder.GeometryCount()
}

// Release waits for the device and destroys every structure the scene owns.
func (s *RtScene) Release() {
	s.builder.Release()
	if err := s.transients.Flush(); err != nil {
		core.LogError(err.Error())
	}
	s.registry.Release()
	s.models = nil
}
