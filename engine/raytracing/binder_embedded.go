package raytracing

import (
	"fmt"

	"github.com/spaghettifunk/anima-rt/engine/config"
	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/renderer"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-rt/engine/scene"
)

/**
 * @brief Binding model where mesh buffers live in global arrays indexed
 * by geometry id and records carry only the local constants. Absent
 * streams bind a one byte placeholder buffer.
 */
type EmbeddedBinder struct {
	binderBase
	null *metadata.Buffer
}

func NewEmbeddedBinder(device renderer.Device, transients *TransientPool) (*EmbeddedBinder, error) {
	null, err := device.CreateBuffer("embedded.null", 1, metadata.BufferUsageStorage)
	if err != nil {
		return nil, fmt.Errorf("%w: null buffer: %v", core.ErrDeviceFailure, err)
	}
	return &EmbeddedBinder{
		binderBase: newBinderBase(device, transients),
		null:       null,
	}, nil
}

func (b *EmbeddedBinder) BindingModel() config.BindingModel {
	return config.BindingModelEmbedded
}

func (b *EmbeddedBinder) NullBuffer() *metadata.Buffer {
	return b.null
}

func (b *EmbeddedBinder) Initialize(reflection *metadata.ProgramReflection) error {
	if reflection == nil || reflection.Global == nil {
		return fmt.Errorf("%w: program without reflection", core.ErrInvalidBindLocation)
	}
	b.resolve(reflection.Global)
	b.initializeMaterial(reflection)
	return nil
}

func (b *EmbeddedBinder) BeginFrame(vars *RtProgramVars) {}

func (b *EmbeddedBinder) BindMeshBuffers(vars *RtProgramVars, local *renderer.ParameterBlock, mesh *scene.Mesh, geometryID uint32) error {
	global := vars.Global()
	locs := b.resolve(global.Reflection())
	if locs == nil {
		return nil
	}
	for i, slot := range meshBufferSlots {
		if !locs[i].IsValid() {
			continue
		}
		buf, ok := meshStream(mesh, slot)
		if !ok {
			buf = b.null
		}
		if err := global.SetUav(locs[i], geometryID, metadata.NewBufferView(metadata.ResourceViewUav, buf)); err != nil {
			core.LogError(err.Error())
			return err
		}
	}
	return nil
}

func (b *EmbeddedBinder) PayloadSize(local *metadata.ParameterBlockReflection) uint32 {
	if local == nil {
		return 0
	}
	return local.ConstantsSize
}

func (b *EmbeddedBinder) WritePayload(dst []byte, local *renderer.ParameterBlock) error {
	copy(dst, local.Constants())
	return nil
}

func (b *EmbeddedBinder) Release() {
	b.releaseBase()
	if b.null != nil {
		b.device.DestroyBuffer(b.null)
		b.null = nil
	}
}
