package testbed

import (
	"github.com/spaghettifunk/anima-rt/engine"
	"github.com/spaghettifunk/anima-rt/engine/config"
	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/math"
	"github.com/spaghettifunk/anima-rt/engine/raytracing"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-rt/engine/scene"
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	turntable *scene.ModelInstance
	angle     float32
	// radians per second
	spinSpeed float32

	width  uint32
	height uint32
}

func NewTestGame(cfg *config.Config, frames uint64) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: &engine.ApplicationConfig{
				Name:       "Anima RT Testbed",
				Frames:     frames,
				FixedDelta: 1.0 / 60.0,
				Config:     cfg,
			},
			State: &gameState{
				spinSpeed: 0.5,
			},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

/**
 * @brief Builds the synthetic scene: a double sided ground, an instanced
 * crate stack placed twice, a crate riding a looping path and a
 * turntable spun from Update.
 */
func (g *TestGame) Initialize() error {
	core.LogDebug("TestGame Initialize fn....")
	state := g.State.(*gameState)
	settings := g.ApplicationConfig.Config
	state.width = settings.Dispatch.Width
	state.height = settings.Dispatch.Height

	ground := scene.NewModel("ground")
	ground.AddMesh(newPlane("ground", scene.NewMaterial(metadata.MaterialConfig{
		Name:        "ground",
		BaseColor:   math.NewVec4(0.6, 0.6, 0.6, 1),
		DoubleSided: true,
	})), math.NewMat4Scale(math.NewVec3(20, 1, 20)))

	crateMaterial := scene.NewMaterial(metadata.MaterialConfig{
		Name:      "crate",
		BaseColor: math.NewVec4(0.8, 0.5, 0.2, 1),
	})
	crates := scene.NewModel("crates")
	crates.AddMesh(newCube("crate", crateMaterial),
		math.NewMat4Translation(math.NewVec3(0, 1, 0)),
		math.NewMat4Translation(math.NewVec3(2.5, 1, 0)),
		math.NewMat4Translation(math.NewVec3(1.25, 3, 0)),
	)
	// static meshes sharing the identity transform merge into one group
	crates.AddMesh(newCube("pallet-left", crateMaterial))
	crates.AddMesh(newCube("pallet-right", crateMaterial))

	rider := scene.NewModel("rider")
	rider.AddMesh(newCube("rider", scene.NewMaterial(metadata.MaterialConfig{
		Name:      "rider",
		BaseColor: math.NewVec4(0.2, 0.4, 0.9, 1),
		Emissive:  math.NewVec3(0.1, 0.1, 0.3),
	})), math.NewMat4Scale(math.NewVec3(0.5, 0.5, 0.5)))

	turntable := scene.NewModel("turntable")
	turntable.AddMesh(newCube("turntable", scene.NewMaterial(metadata.MaterialConfig{
		Name:      "turntable",
		BaseColor: math.NewVec4(0.3, 0.8, 0.3, 1),
		Specular:  math.NewVec4(1, 1, 1, 32),
	})), math.NewMat4Scale(math.NewVec3(1.5, 0.25, 1.5)))

	s := scene.New()
	s.AddModelInstance(scene.NewModelInstance(ground, "ground", nil))
	s.AddModelInstance(scene.NewModelInstance(crates, "crates-west", math.TransformFromPosition(math.NewVec3(-6, 0, -4))))
	s.AddModelInstance(scene.NewModelInstance(crates, "crates-east", math.TransformFromPosition(math.NewVec3(5, 0, -4))))
	riderInstance := scene.NewModelInstance(rider, "rider", nil)
	s.AddModelInstance(riderInstance)
	tableInstance := scene.NewModelInstance(turntable, "turntable", math.TransformFromPosition(math.NewVec3(0, 0.25, 4)))
	s.AddModelInstance(tableInstance)

	orbit := scene.NewPath("orbit", true)
	orbit.AddKeyframe(scene.Keyframe{Time: 0, Position: math.NewVec3(-4, 1, 2)})
	orbit.AddKeyframe(scene.Keyframe{Time: 2, Position: math.NewVec3(4, 1, 2)})
	orbit.AddKeyframe(scene.Keyframe{Time: 4, Position: math.NewVec3(4, 1, -8)})
	orbit.AddKeyframe(scene.Keyframe{Time: 6, Position: math.NewVec3(-4, 1, 2)})
	orbit.Attach(riderInstance)
	s.AddPath(orbit)

	overview := scene.NewCamera("overview")
	overview.SetPosition(math.NewVec3(0, 12, 18))
	overview.SetTarget(math.NewVec3(0, 0, -2))
	overview.AspectRatio = float32(state.width) / float32(state.height)
	closeup := scene.NewCamera("closeup")
	closeup.SetPosition(math.NewVec3(0, 3, 9))
	closeup.SetTarget(math.NewVec3(0, 0.25, 4))
	closeup.AspectRatio = overview.AspectRatio
	s.AddCamera(closeup)
	s.SetActiveCamera(s.AddCamera(overview))

	s.AddLight(&scene.Light{
		Name:      "sun",
		Type:      scene.LightDirectional,
		Direction: math.NewVec3(-0.3, -1, -0.2),
		Intensity: math.NewVec3(1, 0.95, 0.9),
	})
	s.AddLight(&scene.Light{
		Name:      "lamp",
		Type:      scene.LightPoint,
		Position:  math.NewVec3(0, 6, 0),
		Intensity: math.NewVec3(4, 4, 3),
	})

	g.Scene = s
	// the engine animates ray tracing copies, the turntable copy is
	// looked up on the first update
	state.turntable = nil

	desc := raytracing.ProgramDesc{RayGen: "rayGen"}
	desc.AddMiss(0, "primaryMiss")
	desc.AddMiss(1, "shadowMiss")
	desc.AddHitGroup("primaryClosestHit", "primaryAnyHit", "")
	desc.AddHitGroup("shadowClosestHit", "shadowAnyHit", "")
	g.Program = desc
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.State.(*gameState)
	if state.turntable == nil {
		state.turntable = g.findTurntable()
		if state.turntable == nil {
			return nil
		}
	}
	state.angle += state.spinSpeed * float32(deltaTime)
	rotation := math.NewQuatFromAxisAngle(math.NewVec3(0, 1, 0), state.angle, true)
	state.turntable.Move(state.turntable.Transform.Position, rotation, state.turntable.Transform.Scale)
	return nil
}

// findTurntable returns the ray tracing counterpart the engine animates.
func (g *TestGame) findTurntable() *scene.ModelInstance {
	if g.RtScene == nil {
		return nil
	}
	for m := 0; m < g.RtScene.ModelCount(); m++ {
		for i := 0; i < g.RtScene.ModelInstanceCount(m); i++ {
			if mi := g.RtScene.ModelInstance(m, i); mi.Name == "turntable" {
				return mi
			}
		}
	}
	return nil
}

func (g *TestGame) Render(packet *engine.FramePacket, deltaTime float64) error {
	core.LogDebug("frame %d: t=%.3fs rays %dx%d, hit records %d, miss records %d",
		packet.FrameNumber, packet.SceneTime,
		packet.Dispatch.Extent.Width, packet.Dispatch.Extent.Height,
		packet.Dispatch.Hit.Count(), packet.Dispatch.Miss.Count())
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.State.(*gameState)
	state.width = width
	state.height = height
	for i := 0; i < g.Scene.CameraCount(); i++ {
		g.Scene.Camera(i).AspectRatio = float32(width) / float32(height)
		g.Scene.Camera(i).IsDirty = true
	}
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogInfo("testbed shut down")
	return nil
}
