package engine

import (
	"fmt"
	"sync/atomic"

	"github.com/spaghettifunk/anima-rt/engine/config"
	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/raytracing"
	"github.com/spaghettifunk/anima-rt/engine/renderer"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

// metricsLogInterval is how many frames pass between two metrics lines.
const metricsLogInterval = 60

/**
 * @brief Drives a game headless: the game fills a scene, the engine
 * promotes it for ray tracing and dispatches one frame per loop turn.
 */
type Engine struct {
	currentStage Stage
	gameInstance *Game
	isRunning    atomic.Bool
	config       *config.Config
	reloads      chan *config.Config

	renderer *renderer.Renderer
	scene    *raytracing.RtScene
	pipeline *pipeline
	output   *metadata.Texture

	clock     *core.Clock
	lastTime  float64
	sceneTime float64
}

// pipeline groups everything that depends on the binding model.
type pipeline struct {
	program    *raytracing.RtProgram
	state      *raytracing.RtState
	vars       *raytracing.RtProgramVars
	binder     raytracing.ShaderRecordBinder
	rtRenderer *raytracing.RtSceneRenderer
}

func (p *pipeline) release() {
	p.vars.Release()
	p.rtRenderer.Release()
	p.state.Release()
	p.program.Release()
}

func New(g *Game, device renderer.Device) (*Engine, error) {
	if g == nil || g.ApplicationConfig == nil {
		return nil, fmt.Errorf("the game has no application config")
	}
	if g.FnInitialize == nil || g.FnUpdate == nil || g.FnRender == nil {
		return nil, fmt.Errorf("the game must provide initialize, update and render callbacks")
	}
	cfg := g.ApplicationConfig.settings()
	if err := cfg.Validate(); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	if err := core.MetricsInitialize(); err != nil {
		return nil, err
	}
	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       cfg,
		reloads:      make(chan *config.Config, 1),
		renderer:     renderer.New(device),
		clock:        core.NewClock(),
	}, nil
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) Renderer() *renderer.Renderer {
	return e.renderer
}

// Scene is the ray tracing scene, available once Initialize returned.
func (e *Engine) Scene() *raytracing.RtScene {
	return e.scene
}

func (e *Engine) Binder() raytracing.ShaderRecordBinder {
	if e.pipeline == nil {
		return nil
	}
	return e.pipeline.binder
}

func (e *Engine) Output() *metadata.Texture {
	return e.output
}

func configureLogging(cfg config.LoggingConfig) error {
	core.LogConfigure(cfg.Level, cfg.Prefix)
	return core.LogToFile(cfg.FileConfig())
}

/**
 * @brief Runs the game initialization and builds the ray tracing scene
 * and pipeline from its content.
 */
func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageUninitialized {
		return fmt.Errorf("engine already initialized")
	}
	e.currentStage = EngineStageInitializing
	if err := configureLogging(e.config.Logging); err != nil {
		return err
	}

	if err := e.gameInstance.FnInitialize(); err != nil {
		core.LogError("game failed to initialize: %s", err.Error())
		return err
	}
	if e.gameInstance.Scene == nil {
		return fmt.Errorf("game '%s' did not create a scene", e.gameInstance.ApplicationConfig.Name)
	}
	if e.gameInstance.Scene.ModelCount() == 0 {
		core.LogWarn("%s, only miss programs will run", core.ErrSceneEmpty)
	}

	options, err := raytracing.SceneOptionsFromConfig(e.config)
	if err != nil {
		return err
	}
	rs, err := raytracing.CreateFromScene(e.gameInstance.Scene, e.renderer.Device(), e.renderer.Stream(), options)
	if err != nil {
		return err
	}
	e.scene = rs
	e.gameInstance.RtScene = rs

	extent := e.config.Dispatch.Extent()
	e.output = &metadata.Texture{
		Name:   e.gameInstance.ApplicationConfig.Name + ".output",
		Width:  extent.Width,
		Height: extent.Height,
		Flags:  metadata.TextureFlagIsWriteable,
	}

	p, err := e.buildPipeline(e.config)
	if err != nil {
		e.scene.Release()
		return err
	}
	e.pipeline = p

	core.LogInfo("engine initialized: %d models, %d cameras, %s binding",
		e.scene.ModelCount(), e.scene.CameraCount(), e.config.Raytracing.BindingModel)
	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) buildPipeline(cfg *config.Config) (*pipeline, error) {
	name := e.gameInstance.ApplicationConfig.Name
	desc := e.gameInstance.Program
	reflection := raytracing.NewStandardReflection(name, desc, raytracing.ReflectionOptions{
		BindingModel: cfg.Raytracing.BindingModel,
		ArraySize:    cfg.Raytracing.MeshArraySize,
	})
	program, err := raytracing.NewRtProgram(name, desc, reflection)
	if err != nil {
		return nil, err
	}
	binder, err := raytracing.NewBinder(cfg.Raytracing.BindingModel, e.renderer.Device(), e.scene.Transients(), cfg.Raytracing.DescriptorPoolSize)
	if err != nil {
		program.Release()
		return nil, err
	}
	rtRenderer := raytracing.NewRtSceneRenderer(e.scene, binder)
	rtRenderer.SetOutput(e.output)
	return &pipeline{
		program:    program,
		state:      raytracing.NewRtState(e.renderer.Device(), program, cfg.Raytracing.MaxRecursionDepth),
		vars:       raytracing.NewRtProgramVars(program, e.scene),
		binder:     binder,
		rtRenderer: rtRenderer,
	}, nil
}

/**
 * @brief Queues cfg for the next frame. A pending config not yet applied
 * is replaced. Safe to call from any goroutine.
 */
func (e *Engine) Reload(cfg *config.Config) {
	for {
		select {
		case e.reloads <- cfg:
			return
		default:
		}
		select {
		case <-e.reloads:
		default:
		}
	}
}

// applyPendingConfig swaps in a queued config between frames.
func (e *Engine) applyPendingConfig() error {
	var cfg *config.Config
	select {
	case cfg = <-e.reloads:
	default:
		return nil
	}
	old := e.config
	e.config = cfg
	e.gameInstance.ApplicationConfig.Config = cfg
	if cfg.Logging != old.Logging {
		if err := configureLogging(cfg.Logging); err != nil {
			return err
		}
	}

	if cfg.Dispatch.Extent() != old.Dispatch.Extent() {
		extent := cfg.Dispatch.Extent()
		e.output.Width = extent.Width
		e.output.Height = extent.Height
		e.output.Generation++
		if e.gameInstance.FnOnResize != nil {
			if err := e.gameInstance.FnOnResize(extent.Width, extent.Height); err != nil {
				return err
			}
		}
		core.LogDebug("dispatch resized to %dx%dx%d", extent.Width, extent.Height, extent.Depth)
	}

	if cfg.Raytracing.BindingModel != old.Raytracing.BindingModel ||
		cfg.Raytracing.MeshArraySize != old.Raytracing.MeshArraySize ||
		cfg.Raytracing.DescriptorPoolSize != old.Raytracing.DescriptorPoolSize {
		if err := e.renderer.Shutdown(); err != nil {
			return err
		}
		p, err := e.buildPipeline(cfg)
		if err != nil {
			return err
		}
		e.pipeline.release()
		e.pipeline = p
		core.LogInfo("pipeline rebuilt for %s binding", cfg.Raytracing.BindingModel)
	} else if cfg.Raytracing.MaxRecursionDepth != old.Raytracing.MaxRecursionDepth {
		e.pipeline.state.SetMaxTraceRecursionDepth(cfg.Raytracing.MaxRecursionDepth)
	}

	if cfg.Raytracing.AllowRefit != old.Raytracing.AllowRefit ||
		cfg.Raytracing.MaxCachedTLAS != old.Raytracing.MaxCachedTLAS ||
		cfg.Raytracing.MergeStaticMeshes != old.Raytracing.MergeStaticMeshes {
		core.LogWarn("scene options changed, they apply the next time the scene is created")
	}
	return nil
}

/**
 * @brief Renders one frame: game update, scene animation, dispatch and
 * submission. Returns the packet handed to the game render callback.
 */
func (e *Engine) Frame(delta float64) (*FramePacket, error) {
	if err := e.applyPendingConfig(); err != nil {
		return nil, err
	}
	if err := e.gameInstance.FnUpdate(delta); err != nil {
		return nil, fmt.Errorf("game update: %w", err)
	}

	e.sceneTime += delta
	if _, err := e.scene.Update(e.sceneTime); err != nil {
		return nil, err
	}

	if err := e.renderer.BeginFrame(delta); err != nil {
		return nil, err
	}
	p := e.pipeline
	if err := p.rtRenderer.RenderScene(p.vars, p.state, e.config.Dispatch.Extent(), e.scene.ActiveCamera()); err != nil {
		// the recorded work is still submitted so transient buffers retire
		_ = e.renderer.EndFrame(delta)
		return nil, err
	}
	if err := e.renderer.EndFrame(delta); err != nil {
		return nil, err
	}

	packet := &FramePacket{
		FrameNumber: e.renderer.FrameNumber(),
		DeltaTime:   delta,
		SceneTime:   e.sceneTime,
		Dispatch:    p.rtRenderer.LastDispatch(),
		Scene:       e.scene,
	}
	if err := e.gameInstance.FnRender(packet, delta); err != nil {
		return nil, fmt.Errorf("game render: %w", err)
	}
	return packet, nil
}

/**
 * @brief Runs frames until the configured frame count is reached or
 * Shutdown is called, then releases everything. A failed frame is fatal.
 */
func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("engine must be initialized before running")
	}
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)
	e.clock.Start()
	e.lastTime = 0

	frames := e.gameInstance.ApplicationConfig.Frames
	for e.isRunning.Load() {
		if frames > 0 && e.renderer.FrameNumber() >= frames {
			break
		}

		// Update clock and get delta time.
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		if fixed := e.gameInstance.ApplicationConfig.FixedDelta; fixed > 0 {
			delta = fixed
		}

		packet, err := e.Frame(delta)
		if err != nil {
			core.LogFatal("frame %d failed, shutting down: %s", e.renderer.FrameNumber(), err.Error())
			break
		}

		if packet.FrameNumber%metricsLogInterval == 0 {
			e.logMetrics()
		}
		e.lastTime = currentTime
	}
	e.logMetrics()

	return e.release()
}

func (e *Engine) logMetrics() {
	m := core.MetricsSnapshot()
	fps, frameTime := core.MetricsFrame()
	core.LogInfo("frames=%d fps=%.1f frame=%.3fms blas=%d tlas_rebuilds=%d tlas_refits=%d tlas_cache_hits=%d records=%d failed=%d",
		e.renderer.FrameNumber(), fps, frameTime,
		m.BottomLevelBuilds, m.TopLevelRebuilds, m.TopLevelRefits, m.TopLevelCacheHits, m.RecordsWritten, m.FailedFrames)
}

// Shutdown stops the run loop after the current frame.
func (e *Engine) Shutdown() error {
	e.isRunning.Store(false)
	return nil
}

func (e *Engine) release() error {
	e.currentStage = EngineStageShuttingDown
	e.clock.Stop()
	if err := e.renderer.Shutdown(); err != nil {
		return err
	}
	if e.pipeline != nil {
		e.pipeline.release()
		e.pipeline = nil
	}
	if e.scene != nil {
		e.scene.Release()
	}
	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			return err
		}
	}
	if err := core.LogToFile(core.LogFileConfig{}); err != nil {
		return err
	}
	e.currentStage = EngineStageUninitialized
	return nil
}
