package audio

import "time"

const (
	DefaultSampleRate = 16000
	DefaultFormat     = "linear16"
	DefaultChannels   = 1

	// DefaultBlockSize is the number of samples delivered per capture
	// callback. 8192 halves the message count at the cost of another
	// ~256ms of latency.
	DefaultBlockSize = 4096
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Format: encodingFormat(DefaultFormat)}
}

type EncodingInfo struct {
	SampleRate int
	Format     encodingFormat
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

func (e EncodingInfo) SilenceValue() byte {
	switch e.Format {
	case encodingFormat("alaw"):
		return 0x55
	case encodingFormat("mulaw"):
		return 0xFF
	case encodingFormat("linear16"):
		return 0
	}

	return 0
}

// FrameBytes is the size in bytes of an encoded frame holding samples
// samples.
func (e EncodingInfo) FrameBytes(samples int) int {
	return samples * e.Format.ByteSize() * DefaultChannels
}

// BlockDuration is the audio time covered by one block, which is also the
// latency a block adds before its first sample can be sent.
func BlockDuration(blockSize, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(blockSize) * time.Second / time.Duration(sampleRate)
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case encodingFormat("mulaw"), encodingFormat("alaw"):
		return 1
	case encodingFormat("linear16"):
		return 2
	}
	return -1
}

const (
	EncodingMulaw    encodingFormat = "mulaw"
	EncodingALaw     encodingFormat = "alaw"
	EncodingLinear16 encodingFormat = "linear16"
)
