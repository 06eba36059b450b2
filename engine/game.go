package engine

import (
	"github.com/spaghettifunk/anima-rt/engine/raytracing"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-rt/engine/scene"
)

/**
 * @brief The callbacks and content a game hands to the engine. FnInitialize
 * must fill Scene and Program; the engine promotes the scene for ray
 * tracing once it returns.
 */
type Game struct {
	ApplicationConfig *ApplicationConfig
	Scene             *scene.Scene
	// RtScene is set by the engine once Scene was promoted.
	RtScene      *raytracing.RtScene
	Program      raytracing.ProgramDesc
	State        interface{}
	FnInitialize Initialize
	FnUpdate     Update
	FnRender     Render
	FnOnResize   OnResize
	FnShutdown   Shutdown
}

// FramePacket describes a frame once its rays were dispatched.
type FramePacket struct {
	FrameNumber uint64
	DeltaTime   float64
	SceneTime   float64
	Dispatch    metadata.DispatchDesc
	Scene       *raytracing.RtScene
}

type Initialize func() error
type Update func(deltaTime float64) error
type Render func(packet *FramePacket, deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
