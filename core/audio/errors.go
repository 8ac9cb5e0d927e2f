package audio

import "errors"

var (
	// ErrPermissionDenied is returned when the host refuses access to the
	// microphone.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrUnsupportedEnvironment is returned when the host has no usable
	// audio capture facility.
	ErrUnsupportedEnvironment = errors.New("audio capture not supported")
	ErrInvalidBlockSize       = errors.New("block size must be positive")
)
