package core

import (
	"errors"
)

var (
	// Configuration errors: the requested program or slot does not exist.
	ErrProgramNotFound     = errors.New("program version not found in state object program list")
	ErrInvalidBindLocation = errors.New("invalid bind location")

	// Resource exhaustion. Fatal for the frame.
	ErrDescriptorPoolExhausted = errors.New("descriptor pool exhausted")
	ErrResourceArrayOverflow   = errors.New("resource array index out of range")

	// Device level build or allocation failure.
	ErrDeviceFailure = errors.New("device failure")

	ErrFrameFailed = errors.New("ray tracing frame failed")
	ErrSceneEmpty  = errors.New("scene has no models")
	ErrUnknown     = errors.New("unknown")
)
