package core

import "sync"

const AVG_COUNT uint8 = 30

// MetricsState tracks frame timing plus the acceleration structure and
// shader table work done by the ray tracing renderer.
type MetricsState struct {
	FrameAVGCounter    uint8
	MStimes            [AVG_COUNT]float64
	MSavg              float64
	Frames             int32
	AccumulatedFrameMS float64
	FPS                float64

	BottomLevelBuilds uint64
	TopLevelRebuilds  uint64
	TopLevelRefits    uint64
	TopLevelCacheHits uint64
	RecordsWritten    uint64
	FailedFrames      uint64
}

type MetricsCounter int

const (
	MetricBottomLevelBuild MetricsCounter = iota
	MetricTopLevelRebuild
	MetricTopLevelRefit
	MetricTopLevelCacheHit
	MetricRecordWritten
	MetricFailedFrame
)

var (
	onceMetrics  sync.Once
	metricsMu    sync.Mutex
	metricsState *MetricsState = nil
)

func MetricsInitialize() error {
	onceMetrics.Do(func() {
		metricsState = &MetricsState{
			MStimes: [AVG_COUNT]float64{0},
		}
	})
	return nil
}

func MetricsUpdate(frame_elapsed_time float64) {
	MetricsInitialize()
	metricsMu.Lock()
	defer metricsMu.Unlock()

	frame_ms := (frame_elapsed_time * 1000.0)
	metricsState.MStimes[metricsState.FrameAVGCounter] = frame_ms
	if metricsState.FrameAVGCounter == AVG_COUNT-1 {
		metricsState.MSavg = 0
		for i := uint8(0); i < AVG_COUNT; i++ {
			metricsState.MSavg += metricsState.MStimes[i]
		}
		metricsState.MSavg /= float64(AVG_COUNT)
	}
	metricsState.FrameAVGCounter++
	metricsState.FrameAVGCounter %= AVG_COUNT

	metricsState.AccumulatedFrameMS += frame_ms
	if metricsState.AccumulatedFrameMS > 1000 {
		metricsState.FPS = float64(metricsState.Frames)
		metricsState.AccumulatedFrameMS -= 1000
		metricsState.Frames = 0
	}
	metricsState.Frames++
}

// MetricsAdd bumps one of the renderer counters.
func MetricsAdd(counter MetricsCounter, n uint64) {
	MetricsInitialize()
	metricsMu.Lock()
	defer metricsMu.Unlock()

	switch counter {
	case MetricBottomLevelBuild:
		metricsState.BottomLevelBuilds += n
	case MetricTopLevelRebuild:
		metricsState.TopLevelRebuilds += n
	case MetricTopLevelRefit:
		metricsState.TopLevelRefits += n
	case MetricTopLevelCacheHit:
		metricsState.TopLevelCacheHits += n
	case MetricRecordWritten:
		metricsState.RecordsWritten += n
	case MetricFailedFrame:
		metricsState.FailedFrames += n
	}
}

// MetricsSnapshot returns a copy of the current counters.
func MetricsSnapshot() MetricsState {
	MetricsInitialize()
	metricsMu.Lock()
	defer metricsMu.Unlock()
	return *metricsState
}

func MetricsFPS() float64 {
	return MetricsSnapshot().FPS
}

func MetricsFrameTime() float64 {
	return MetricsSnapshot().MSavg
}

func MetricsFrame() (float64, float64) {
	s := MetricsSnapshot()
	return s.FPS, s.MSavg
}
