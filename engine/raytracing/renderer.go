package raytracing

import (
	"encoding/binary"
	"fmt"

	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/math"
	"github.com/spaghettifunk/anima-rt/engine/renderer"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-rt/engine/scene"
)

// FrameState is the outcome of the last RenderScene call.
type FrameState int

const (
	FrameIdle FrameState = iota
	FrameDispatched
	FrameFailed
)

func (s FrameState) String() string {
	switch s {
	case FrameDispatched:
		return "dispatched"
	case FrameFailed:
		return "failed"
	}
	return "idle"
}

/**
 * @brief Drives one ray tracing dispatch per frame: builds or reuses
 * the top level structure, binds globals and every shader record
 * through the binder, applies the binding table and traces.
 */
type RtSceneRenderer struct {
	scene  *RtScene
	binder ShaderRecordBinder
	stream renderer.CommandStream

	output       *metadata.Texture
	state        FrameState
	lastDispatch metadata.DispatchDesc
}

func NewRtSceneRenderer(scene *RtScene, binder ShaderRecordBinder) *RtSceneRenderer {
	return &RtSceneRenderer{
		scene:  scene,
		binder: binder,
		stream: scene.Stream(),
	}
}

func (r *RtSceneRenderer) Scene() *RtScene {
	return r.scene
}

func (r *RtSceneRenderer) Binder() ShaderRecordBinder {
	return r.binder
}

// SetOutput sets the texture bound to the output slot of every dispatch.
func (r *RtSceneRenderer) SetOutput(output *metadata.Texture) {
	r.output = output
}

func (r *RtSceneRenderer) State() FrameState {
	return r.state
}

// LastDispatch is the dispatch of the last successful frame.
func (r *RtSceneRenderer) LastDispatch() metadata.DispatchDesc {
	return r.lastDispatch
}

/**
 * @brief Renders the scene with the program behind vars and state over
 * extent. Any failure marks the frame failed and is returned wrapped
 * in core.ErrFrameFailed.
 */
func (r *RtSceneRenderer) RenderScene(vars *RtProgramVars, state *RtState, extent metadata.DispatchExtent, camera *scene.Camera) error {
	r.state = FrameIdle
	if err := r.render(vars, state, extent, camera); err != nil {
		r.state = FrameFailed
		core.MetricsAdd(core.MetricFailedFrame, 1)
		core.LogError("frame failed: %s", err.Error())
		return fmt.Errorf("%w: %w", core.ErrFrameFailed, err)
	}
	r.state = FrameDispatched
	return nil
}

func (r *RtSceneRenderer) render(vars *RtProgramVars, state *RtState, extent metadata.DispatchExtent, camera *scene.Camera) error {
	h := vars.HitProgramCount()
	if h > 0 {
		if err := r.binder.Initialize(vars.Program().Reflection()); err != nil {
			return err
		}
	}
	tlas, err := r.scene.TopLevel(h)
	if err != nil {
		return err
	}
	vars.Resize(r.scene.GeometryCount())
	r.binder.BeginFrame(vars)

	// raygen records carry no per frame data, the generic per frame
	// constants live in the global block

	if err := r.bindGlobals(vars.Global(), tlas, h, camera); err != nil {
		return err
	}

	for i := 0; i < int(vars.MissProgramCount()); i++ {
		if miss := vars.MissVars(i); miss != nil {
			if err := setMissShaderData(miss, i); err != nil {
				return err
			}
		}
	}

	if h > 0 && tlas != nil {
		if err := r.bindHitRecords(vars, h); err != nil {
			return err
		}
	}

	if err := r.binder.Flush(r.stream.NextFenceValue()); err != nil {
		return err
	}
	desc, err := vars.Apply(r.stream, state, r.binder)
	if err != nil {
		return err
	}

	if tlas != nil {
		r.stream.AccelerationStructureBarrier(tlas)
	}
	desc.Extent = extent.Normalized()
	if err := r.stream.TraceRays(desc); err != nil {
		return fmt.Errorf("%w: trace rays: %v", core.ErrDeviceFailure, err)
	}
	r.lastDispatch = desc
	return nil
}

func (r *RtSceneRenderer) bindGlobals(global *renderer.ParameterBlock, tlas *metadata.AccelerationStructure, h uint32, camera *scene.Camera) error {
	refl := global.Reflection()
	sceneLoc := refl.GetResourceBinding(SceneResourceName)
	switch {
	case h > 0 && tlas != nil:
		if err := global.SetAccelerationStructure(sceneLoc, 0, tlas); err != nil {
			return err
		}
	case global.GetAccelerationStructure(sceneLoc, 0) != nil:
		// drop the structure of an earlier frame, it may be released
		if err := global.SetAccelerationStructure(sceneLoc, 0, nil); err != nil {
			return err
		}
	}
	if r.output != nil {
		view := metadata.NewTextureView(r.output)
		if err := global.SetUav(refl.GetResourceBinding(OutputResourceName), 0, view); err != nil {
			return err
		}
	}

	var word [4]byte
	binary.LittleEndian.PutUint32(word[:], h)
	if err := setIfDeclared(global, hitProgramCountName, word[:]); err != nil {
		return err
	}
	return setPerFrameData(global, camera, r.scene.Lights())
}

// setPerFrameData writes the camera and light constants the block declares.
func setPerFrameData(block *renderer.ParameterBlock, camera *scene.Camera, lights []*scene.Light) error {
	if camera != nil {
		for _, v := range []struct {
			name string
			m    math.Mat4
		}{
			{viewMatName, camera.GetView()},
			{projMatName, camera.GetProjection()},
			{viewProjMatName, camera.GetViewProjection()},
			{prevViewProjMatName, camera.GetPrevViewProjection()},
		} {
			var data [64]byte
			metadata.PutMat4(data[:], v.m)
			if err := setIfDeclared(block, v.name, data[:]); err != nil {
				return err
			}
		}
		var pos [16]byte
		metadata.PutVec4(pos[:], camera.Position.ToVec4(1))
		if err := setIfDeclared(block, cameraPosName, pos[:12]); err != nil {
			return err
		}
	}

	count := min(len(lights), MaxLights)
	if len(lights) > MaxLights {
		core.LogWarn("%d lights in the scene, only the first %d are bound", len(lights), MaxLights)
	}
	var word [4]byte
	binary.LittleEndian.PutUint32(word[:], uint32(count))
	if err := setIfDeclared(block, lightCountName, word[:]); err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	data := make([]byte, count*lightSize)
	for i, l := range lights[:count] {
		off := i * lightSize
		pos := l.Position.ToVec4(float32(l.Type))
		metadata.PutVec4(data[off:], pos)
		metadata.PutVec4(data[off+16:], l.Direction.ToVec4(0))
		metadata.PutVec4(data[off+32:], l.Intensity.ToVec4(0))
	}
	return setIfDeclared(block, lightsName, data)
}

func setMissShaderData(block *renderer.ParameterBlock, index int) error {
	var word [4]byte
	binary.LittleEndian.PutUint32(word[:], uint32(index))
	return setIfDeclared(block, missIndexName, word[:])
}

func setIfDeclared(block *renderer.ParameterBlock, name string, data []byte) error {
	if _, ok := block.Reflection().GetConstant(name); !ok {
		return nil
	}
	return block.SetVariable(name, data)
}

/**
 * @brief Writes the hit records of every hit program for every
 * geometry, in instance id order. The material block is written once
 * per geometry.
 */
func (r *RtSceneRenderer) bindHitRecords(vars *RtProgramVars, h uint32) error {
	ix := r.scene.Indexer()
	if ix.Total() != vars.GeometryCount() {
		return fmt.Errorf("indexer enumerates %d geometries, top level structure holds %d", ix.Total(), vars.GeometryCount())
	}

	var err error
	for p := 0; p < int(h); p++ {
		ix.Enumerate(func(k InstanceKey, id uint32) {
			if err != nil {
				return
			}
			local := vars.HitVars(p, id)
			rt := r.scene.RtModel(k.Model)
			mesh := rt.Mesh(k.Mesh)
			mi := r.scene.ModelInstance(k.Model, k.ModelInstance)
			meshLocal := rt.Model.MeshInstance(k.Mesh, k.MeshInstance).Transform

			if err = r.binder.SetInstanceConstants(local, mesh, mi.World(), mi.PrevWorld(), meshLocal, id); err != nil {
				return
			}
			if err = r.binder.BindMeshBuffers(vars, local, mesh, id); err != nil {
				return
			}
			if p == 0 {
				err = r.binder.BindMaterial(vars, mesh.Material, id)
			}
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Release frees the binder resources.
func (r *RtSceneRenderer) Release() {
	r.binder.Release()
}
