package audio

import "context"

// Capture is a microphone-like source producing fixed-size blocks.
//
// StartCapture begins delivering blocks to onBlock until StopCapture is
// called. onBlock runs on the capture thread and should not block.
// StopCapture on a client that isn't capturing is a no-op. Close releases
// the underlying device and may be called more than once.
type Capture interface {
	StartCapture(ctx context.Context, onBlock func(Block)) error
	StopCapture() error
	EncodingInfo() EncodingInfo
	Close()
}
