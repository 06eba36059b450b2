package raytracing

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-rt/engine/config"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
)

func TestProgramGroups(t *testing.T) {
	desc := ProgramDesc{RayGen: "rayGen"}
	desc.AddMiss(2, "shadowMiss").AddMiss(0, "miss")
	desc.AddHitGroup("closestHit", "anyHit", "")
	desc.AddHitGroup("sphereHit", "", "sphere")

	program, err := NewRtProgram("groups", desc, NewStandardReflection("groups", desc, ReflectionOptions{}))
	require.NoError(t, err)
	defer program.Release()

	assert.Equal(t, uint32(3), program.MissProgramCount())
	assert.Equal(t, uint32(2), program.HitProgramCount())
	assert.True(t, program.HasMiss(2))
	assert.False(t, program.HasMiss(1))
	assert.Nil(t, program.MissLocal(1))

	groups := program.Groups()
	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = g.Name
	}
	assert.Equal(t, []string{"raygen", "miss0", "miss2", "hitgroup0", "hitgroup1"}, names)
	assert.Equal(t, metadata.ShaderGroupGeneral, groups[2].Type)
	assert.Equal(t, "shadowMiss", groups[2].EntryPoints[metadata.ShaderStageMiss])
	assert.Equal(t, metadata.ShaderGroupTrianglesHit, groups[3].Type)
	assert.Equal(t, "anyHit", groups[3].EntryPoints[metadata.ShaderStageAnyHit])
	assert.Equal(t, metadata.ShaderGroupProceduralHit, groups[4].Type)
	assert.Equal(t, "sphere", groups[4].EntryPoints[metadata.ShaderStageIntersection])
}

func TestNewRtProgramValidates(t *testing.T) {
	desc := ProgramDesc{RayGen: "rayGen"}
	_, err := NewRtProgram("no-raygen", ProgramDesc{}, NewStandardReflection("x", desc, ReflectionOptions{}))
	assert.Error(t, err)
	_, err = NewRtProgram("no-reflection", desc, nil)
	assert.Error(t, err)
}

func TestStandardReflectionLayouts(t *testing.T) {
	desc := ProgramDesc{RayGen: "rayGen"}
	desc.AddMiss(0, "miss").AddHitGroup("closestHit", "", "")

	tables := NewStandardReflection("tables", desc, ReflectionOptions{BindingModel: config.BindingModelTables, ArraySize: 16})
	hit := tables.Local("closestHit")
	require.NotNil(t, hit)
	assert.True(t, hit.GetResourceBinding("position").IsValid())
	assert.False(t, tables.Global.GetResourceBinding("position").IsValid())
	assert.Equal(t, uint32(180), hit.ConstantsSize)

	embedded := NewStandardReflection("embedded", desc, ReflectionOptions{BindingModel: config.BindingModelEmbedded, ArraySize: 16})
	res, ok := embedded.Global.GetResource("prevPosition")
	require.True(t, ok)
	assert.Equal(t, metadata.ShaderResourceUav, res.Type)
	assert.Equal(t, uint32(16), res.ArraySize)
	assert.False(t, embedded.Local("closestHit").GetResourceBinding("position").IsValid())

	materials := embedded.Global.GetBlock(MaterialBlockName)
	require.NotNil(t, materials)
	tex, ok := materials.GetResource(metadata.MaterialTextureSlot(0).ShaderName())
	require.True(t, ok)
	assert.Equal(t, uint32(16), tex.ArraySize)

	_, ok = embedded.Local("miss").GetConstant(missIndexName)
	assert.True(t, ok)
	assert.NotEqual(t, tables.ID, embedded.ID)
}

func TestRtStateCompilesLazily(t *testing.T) {
	d, _ := newTestDevice()
	program := testProgram(t, config.BindingModelEmbedded, 2, 0)
	state := NewRtState(d, program, 0)
	defer state.Release()
	assert.Equal(t, uint32(1), state.MaxTraceRecursionDepth())

	so, err := state.StateObject()
	require.NoError(t, err)
	again, err := state.StateObject()
	require.NoError(t, err)
	assert.Same(t, so, again)
	assert.Len(t, so.Groups, 4)
	assert.Len(t, so.Identifier(0), 32)

	state.SetMaxTraceRecursionDepth(1)
	same, err := state.StateObject()
	require.NoError(t, err)
	assert.Same(t, so, same)

	state.SetMaxTraceRecursionDepth(4)
	deeper, err := state.StateObject()
	require.NoError(t, err)
	assert.NotSame(t, so, deeper)
	assert.Equal(t, uint32(4), deeper.MaxTraceRecursionDepth)
}

func TestProgramVarsLayout(t *testing.T) {
	rs, _, _ := twoInstanceScene(t, testOptions())
	defer rs.Release()
	program := testProgram(t, config.BindingModelEmbedded, 3, 0, 2)
	vars := NewRtProgramVars(program, rs)

	assert.Nil(t, vars.MissVars(1))
	assert.Nil(t, vars.MissVars(5))
	for _, i := range []int{0, 2} {
		miss := vars.MissVars(i)
		require.NotNil(t, miss)
		c, _ := miss.Reflection().GetConstant(missIndexName)
		assert.Equal(t, uint32(i), binary.LittleEndian.Uint32(miss.Constants()[c.Offset:]))
	}

	vars.Resize(4)
	assert.Equal(t, uint32(4), vars.GeometryCount())
	assert.NotNil(t, vars.HitVars(2, 3))
	assert.Nil(t, vars.HitVars(3, 0))
	assert.Nil(t, vars.HitVars(0, 4))
	assert.NotSame(t, vars.HitVars(0, 1), vars.HitVars(1, 1))

	first := vars.HitVars(1, 2)
	vars.Resize(4)
	assert.Same(t, first, vars.HitVars(1, 2), "same geometry count keeps the records")
	vars.Resize(5)
	assert.NotSame(t, first, vars.HitVars(1, 2))
}
