package audio

import (
	"encoding/binary"
	"math"
)

const pcmScale = 32767

// Block is one capture callback's worth of mono samples normalized to
// [-1, 1]. Producers hand over ownership; nothing writes to Samples after a
// Block has been passed on.
type Block struct {
	Samples    []float32
	SampleRate int
}

func NewBlock(samples []float32, sampleRate int) Block {
	return Block{Samples: samples, SampleRate: sampleRate}
}

func (b Block) Len() int { return len(b.Samples) }

// Frame is a block encoded as signed 16-bit PCM. It always has the same
// length as the Block it was encoded from.
type Frame []int16

// Encode converts a normalized block into a PCM frame. Samples outside
// [-1, 1] are clamped first so overdriven input saturates instead of
// wrapping. NaN encodes as silence.
func Encode(block Block) Frame {
	frame := make(Frame, len(block.Samples))
	for i, sample := range block.Samples {
		frame[i] = EncodeSample(sample)
	}
	return frame
}

func EncodeSample(sample float32) int16 {
	s := float64(sample)
	if math.IsNaN(s) {
		return 0
	}
	s = max(-1, min(1, s))
	return int16(math.Round(s * pcmScale))
}

// Bytes returns the little-endian wire representation of the frame.
func (f Frame) Bytes() []byte {
	buf := make([]byte, len(f)*2)
	for i, sample := range f {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(sample))
	}
	return buf
}

// DecodeFrame is the inverse of [Frame.Bytes]. A trailing odd byte is
// ignored.
func DecodeFrame(data []byte) Frame {
	frame := make(Frame, len(data)/2)
	for i := range frame {
		frame[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return frame
}
