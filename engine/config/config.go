// Package config holds the ray tracing renderer settings.
package config

import (
	"fmt"
	"strings"

	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
)

type BindingModel string

const (
	// BindingModelTables binds mesh buffers per record through descriptor tables.
	BindingModelTables BindingModel = "tables"
	// BindingModelEmbedded binds mesh buffers into global arrays indexed by geometry id.
	BindingModelEmbedded BindingModel = "embedded"
)

// Config holds all renderer settings.
type Config struct {
	Raytracing RaytracingConfig `toml:"raytracing" yaml:"raytracing"`
	Dispatch   DispatchConfig   `toml:"dispatch" yaml:"dispatch"`
	Debug      DebugConfig      `toml:"debug" yaml:"debug"`
	Logging    LoggingConfig    `toml:"logging" yaml:"logging"`
}

type RaytracingConfig struct {
	BindingModel BindingModel `toml:"binding_model" yaml:"binding_model"`
	// AllowRefit requests a top level refit after every scene update.
	AllowRefit bool `toml:"allow_refit" yaml:"allow_refit"`
	// MaxCachedTLAS bounds how many top level structures, one per hit
	// program count, are kept alive.
	MaxCachedTLAS     int  `toml:"max_cached_tlas" yaml:"max_cached_tlas"`
	MergeStaticMeshes bool `toml:"merge_static_meshes" yaml:"merge_static_meshes"`
	// BuildFlags for bottom level structures: allow_update, prefer_fast_trace,
	// prefer_fast_build, minimize_memory.
	BuildFlags         []string `toml:"build_flags" yaml:"build_flags"`
	DescriptorPoolSize uint32   `toml:"descriptor_pool_size" yaml:"descriptor_pool_size"`
	// MeshArraySize is the length of the global mesh buffer arrays of the embedded model.
	MeshArraySize     uint32 `toml:"mesh_array_size" yaml:"mesh_array_size"`
	TransientRingSize int    `toml:"transient_ring_size" yaml:"transient_ring_size"`
	MaxRecursionDepth uint32 `toml:"max_recursion_depth" yaml:"max_recursion_depth"`
}

type DispatchConfig struct {
	Width  uint32 `toml:"width" yaml:"width"`
	Height uint32 `toml:"height" yaml:"height"`
	Depth  uint32 `toml:"depth" yaml:"depth"`
}

type DebugConfig struct {
	ValidateInstanceIDs bool `toml:"validate_instance_ids" yaml:"validate_instance_ids"`
}

type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Prefix string `toml:"prefix" yaml:"prefix"`
	// File, when set, receives a copy of the log rotated by size.
	File       string `toml:"file" yaml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `toml:"compress" yaml:"compress"`
}

// FileConfig converts the file settings for core.LogToFile.
func (l LoggingConfig) FileConfig() core.LogFileConfig {
	return core.LogFileConfig{
		Path:       l.File,
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAgeDays: l.MaxAgeDays,
		Compress:   l.Compress,
	}
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Raytracing: RaytracingConfig{
			BindingModel:       BindingModelEmbedded,
			AllowRefit:         true,
			MaxCachedTLAS:      1,
			MergeStaticMeshes:  true,
			BuildFlags:         []string{"prefer_fast_trace"},
			DescriptorPoolSize: 4096,
			MeshArraySize:      1024,
			TransientRingSize:  16,
			MaxRecursionDepth:  1,
		},
		Dispatch: DispatchConfig{
			Width:  1280,
			Height: 720,
			Depth:  1,
		},
		Debug: DebugConfig{
			ValidateInstanceIDs: false,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Prefix:     "",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 7,
			Compress:   true,
		},
	}
}

var buildFlagNames = map[string]metadata.BuildFlags{
	"none":              metadata.BuildFlagNone,
	"allow_update":      metadata.BuildFlagAllowUpdate,
	"allow_compaction":  metadata.BuildFlagAllowCompaction,
	"prefer_fast_trace": metadata.BuildFlagPreferFastTrace,
	"prefer_fast_build": metadata.BuildFlagPreferFastBuild,
	"minimize_memory":   metadata.BuildFlagMinimizeMemory,
}

// BottomLevelBuildFlags decodes the configured flag names.
func (c *RaytracingConfig) BottomLevelBuildFlags() (metadata.BuildFlags, error) {
	flags := metadata.BuildFlagNone
	for _, name := range c.BuildFlags {
		f, ok := buildFlagNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return 0, fmt.Errorf("unknown build flag %q", name)
		}
		flags |= f
	}
	return flags, nil
}

// Extent returns the dispatch extent, depth defaulting to 1.
func (d DispatchConfig) Extent() metadata.DispatchExtent {
	return metadata.DispatchExtent{Width: d.Width, Height: d.Height, Depth: d.Depth}.Normalized()
}

// Validate checks the settings are usable.
func (c *Config) Validate() error {
	switch c.Raytracing.BindingModel {
	case BindingModelTables, BindingModelEmbedded:
	default:
		return fmt.Errorf("raytracing.binding_model: unknown model %q", c.Raytracing.BindingModel)
	}
	if c.Raytracing.MaxCachedTLAS < 1 {
		return fmt.Errorf("raytracing.max_cached_tlas must be at least 1, got %d", c.Raytracing.MaxCachedTLAS)
	}
	if c.Raytracing.TransientRingSize < 1 {
		return fmt.Errorf("raytracing.transient_ring_size must be at least 1, got %d", c.Raytracing.TransientRingSize)
	}
	if c.Raytracing.MeshArraySize == 0 {
		return fmt.Errorf("raytracing.mesh_array_size must be positive")
	}
	if _, err := c.Raytracing.BottomLevelBuildFlags(); err != nil {
		return fmt.Errorf("raytracing.build_flags: %w", err)
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		return fmt.Errorf("logging: rotation limits must not be negative")
	}
	if c.Dispatch.Width == 0 || c.Dispatch.Height == 0 {
		return fmt.Errorf("dispatch: width and height must be positive, got %dx%d", c.Dispatch.Width, c.Dispatch.Height)
	}
	return nil
}
