package raytracing

import (
	"fmt"

	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/renderer"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
)

// HitGroupDesc names the entry points of one hit program.
type HitGroupDesc struct {
	ClosestHit   string
	AnyHit       string
	Intersection string
}

/**
 * @brief The entry points of a ray tracing program. Miss programs are
 * indexed by the miss index passed to TraceRay and may be sparse: an
 * empty entry leaves the slot unused.
 */
type ProgramDesc struct {
	RayGen string
	Miss   []string
	Hit    []HitGroupDesc
}

func (d *ProgramDesc) AddMiss(index int, entryPoint string) *ProgramDesc {
	for len(d.Miss) <= index {
		d.Miss = append(d.Miss, "")
	}
	d.Miss[index] = entryPoint
	return d
}

func (d *ProgramDesc) AddHitGroup(closestHit, anyHit, intersection string) *ProgramDesc {
	d.Hit = append(d.Hit, HitGroupDesc{ClosestHit: closestHit, AnyHit: anyHit, Intersection: intersection})
	return d
}

const rayGenGroupName = "raygen"

func MissGroupName(index int) string {
	return fmt.Sprintf("miss%d", index)
}

func HitGroupName(index int) string {
	return fmt.Sprintf("hitgroup%d", index)
}

/**
 * @brief A ray tracing program: its entry points and the reflection of
 * the global and local parameter blocks.
 */
type RtProgram struct {
	ID         uint32
	Name       string
	desc       ProgramDesc
	reflection *metadata.ProgramReflection
}

func NewRtProgram(name string, desc ProgramDesc, reflection *metadata.ProgramReflection) (*RtProgram, error) {
	if desc.RayGen == "" {
		return nil, fmt.Errorf("program '%s' has no raygen entry point", name)
	}
	if reflection == nil || reflection.Global == nil {
		return nil, fmt.Errorf("program '%s' has no global reflection", name)
	}
	p := &RtProgram{
		Name:       name,
		desc:       desc,
		reflection: reflection,
	}
	p.ID = core.IdentifierAquireNewID(p)
	return p, nil
}

func (p *RtProgram) Desc() ProgramDesc {
	return p.desc
}

func (p *RtProgram) Reflection() *metadata.ProgramReflection {
	return p.reflection
}

func (p *RtProgram) HitProgramCount() uint32 {
	return uint32(len(p.desc.Hit))
}

// MissProgramCount includes unused slots.
func (p *RtProgram) MissProgramCount() uint32 {
	return uint32(len(p.desc.Miss))
}

func (p *RtProgram) HasMiss(index int) bool {
	return index >= 0 && index < len(p.desc.Miss) && p.desc.Miss[index] != ""
}

// RayGenLocal, MissLocal and HitLocal return the local block layouts.
func (p *RtProgram) RayGenLocal() *metadata.ParameterBlockReflection {
	return p.reflection.Local(p.desc.RayGen)
}

func (p *RtProgram) MissLocal(index int) *metadata.ParameterBlockReflection {
	if !p.HasMiss(index) {
		return nil
	}
	return p.reflection.Local(p.desc.Miss[index])
}

func (p *RtProgram) HitLocal(index int) *metadata.ParameterBlockReflection {
	if index < 0 || index >= len(p.desc.Hit) {
		return nil
	}
	return p.reflection.Local(p.desc.Hit[index].ClosestHit)
}

// Groups lists the shader groups in program list order: raygen, the
// used miss slots, then the hit groups.
func (p *RtProgram) Groups() []metadata.ShaderGroup {
	groups := []metadata.ShaderGroup{{
		Name:        rayGenGroupName,
		Type:        metadata.ShaderGroupGeneral,
		EntryPoints: map[metadata.ShaderStage]string{metadata.ShaderStageRayGen: p.desc.RayGen},
	}}
	for i, miss := range p.desc.Miss {
		if miss == "" {
			continue
		}
		groups = append(groups, metadata.ShaderGroup{
			Name:        MissGroupName(i),
			Type:        metadata.ShaderGroupGeneral,
			EntryPoints: map[metadata.ShaderStage]string{metadata.ShaderStageMiss: miss},
		})
	}
	for i, hit := range p.desc.Hit {
		g := metadata.ShaderGroup{
			Name:        HitGroupName(i),
			Type:        metadata.ShaderGroupTrianglesHit,
			EntryPoints: make(map[metadata.ShaderStage]string),
		}
		if hit.ClosestHit != "" {
			g.EntryPoints[metadata.ShaderStageClosestHit] = hit.ClosestHit
		}
		if hit.AnyHit != "" {
			g.EntryPoints[metadata.ShaderStageAnyHit] = hit.AnyHit
		}
		if hit.Intersection != "" {
			g.Type = metadata.ShaderGroupProceduralHit
			g.EntryPoints[metadata.ShaderStageIntersection] = hit.Intersection
		}
		groups = append(groups, g)
	}
	return groups
}

func (p *RtProgram) Release() {
	if err := core.IdentifierReleaseID(p.ID); err != nil {
		core.LogWarn(err.Error())
	}
}

/**
 * @brief Pipeline state of a program: the state object compiled for
 * it and the maximum trace recursion depth. The state object is
 * created on first use and recreated when the program changes.
 */
type RtState struct {
	device      renderer.Device
	program     *RtProgram
	maxDepth    uint32
	stateObject *metadata.StateObject
}

func NewRtState(device renderer.Device, program *RtProgram, maxTraceRecursionDepth uint32) *RtState {
	if maxTraceRecursionDepth == 0 {
		maxTraceRecursionDepth = 1
	}
	return &RtState{
		device:   device,
		program:  program,
		maxDepth: maxTraceRecursionDepth,
	}
}

func (s *RtState) Program() *RtProgram {
	return s.program
}

func (s *RtState) MaxTraceRecursionDepth() uint32 {
	return s.maxDepth
}

func (s *RtState) SetProgram(program *RtProgram) {
	if program == s.program {
		return
	}
	s.Release()
	s.program = program
}

func (s *RtState) SetMaxTraceRecursionDepth(depth uint32) {
	if depth == s.maxDepth {
		return
	}
	s.Release()
	s.maxDepth = depth
}

func (s *RtState) StateObject() (*metadata.StateObject, error) {
	if s.stateObject != nil {
		return s.stateObject, nil
	}
	so, err := s.device.CreateStateObject(s.program.Groups(), s.maxDepth)
	if err != nil {
		err = fmt.Errorf("%w: state object for '%s': %v", core.ErrDeviceFailure, s.program.Name, err)
		core.LogError(err.Error())
		return nil, err
	}
	s.stateObject = so
	return so, nil
}

func (s *RtState) Release() {
	if s.stateObject != nil {
		s.device.DestroyStateObject(s.stateObject)
		s.stateObject = nil
	}
}
