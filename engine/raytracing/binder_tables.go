package raytracing

import (
	"encoding/binary"
	"fmt"

	"github.com/spaghettifunk/anima-rt/engine/config"
	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/renderer"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-rt/engine/scene"
)

const descriptorHandleSize = 8

/**
 * @brief Binding model where each hit record owns a descriptor table.
 * Mesh buffers are bound into the record's local block and the record
 * stores the table handle followed by the local constants.
 */
type TablesBinder struct {
	binderBase
	pool *renderer.DescriptorPool
}

func NewTablesBinder(device renderer.Device, transients *TransientPool, poolSize uint32) *TablesBinder {
	return &TablesBinder{
		binderBase: newBinderBase(device, transients),
		pool:       renderer.NewDescriptorPool(poolSize),
	}
}

func (b *TablesBinder) BindingModel() config.BindingModel {
	return config.BindingModelTables
}

func (b *TablesBinder) Pool() *renderer.DescriptorPool {
	return b.pool
}

func (b *TablesBinder) Initialize(reflection *metadata.ProgramReflection) error {
	if reflection == nil || reflection.Global == nil {
		return fmt.Errorf("%w: program without reflection", core.ErrInvalidBindLocation)
	}
	for _, local := range reflection.Locals {
		b.resolve(local)
	}
	b.initializeMaterial(reflection)
	return nil
}

// BeginFrame recycles the descriptor pool; every record gets a fresh table.
func (b *TablesBinder) BeginFrame(vars *RtProgramVars) {
	b.pool.Reset()
	vars.InvalidateDescriptorTables()
}

func (b *TablesBinder) BindMeshBuffers(vars *RtProgramVars, local *renderer.ParameterBlock, mesh *scene.Mesh, geometryID uint32) error {
	locs := b.resolve(local.Reflection())
	if locs == nil {
		return nil
	}
	for i, slot := range meshBufferSlots {
		if !locs[i].IsValid() {
			continue
		}
		view := metadata.NullSrv()
		if buf, ok := meshStream(mesh, slot); ok {
			view = metadata.NewBufferView(metadata.ResourceViewSrv, buf)
		}
		if err := local.SetSrv(locs[i], 0, view); err != nil {
			core.LogError(err.Error())
			return err
		}
	}
	return nil
}

func (b *TablesBinder) PayloadSize(local *metadata.ParameterBlockReflection) uint32 {
	if local == nil {
		return descriptorHandleSize
	}
	return descriptorHandleSize + local.ConstantsSize
}

func (b *TablesBinder) WritePayload(dst []byte, local *renderer.ParameterBlock) error {
	table, err := local.PrepareDescriptorTable(b.pool)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(dst, table.Handle)
	copy(dst[descriptorHandleSize:], local.Constants())
	return nil
}

func (b *TablesBinder) Release() {
	b.releaseBase()
	b.pool.Reset()
}
