package audio

import "sync"

// Framer regroups samples arriving in arbitrarily sized chunks into blocks
// of exactly blockSize samples. Leftover samples are carried over to the
// next Write.
type Framer struct {
	mu         sync.Mutex
	blockSize  int
	sampleRate int
	pending    []float32
}

func NewFramer(blockSize, sampleRate int) (*Framer, error) {
	if blockSize <= 0 {
		return nil, ErrInvalidBlockSize
	}
	return &Framer{
		blockSize:  blockSize,
		sampleRate: sampleRate,
		pending:    make([]float32, 0, blockSize),
	}, nil
}

func (f *Framer) BlockSize() int { return f.blockSize }

// Write appends samples and calls emit once for every completed block, in
// order. Emitted blocks own their sample slice.
func (f *Framer) Write(samples []float32, emit func(Block)) {
	f.mu.Lock()
	var ready []Block
	for len(samples) > 0 {
		n := min(f.blockSize-len(f.pending), len(samples))
		f.pending = append(f.pending, samples[:n]...)
		samples = samples[n:]

		if len(f.pending) == f.blockSize {
			ready = append(ready, NewBlock(f.pending, f.sampleRate))
			f.pending = make([]float32, 0, f.blockSize)
		}
	}
	f.mu.Unlock()

	for _, block := range ready {
		emit(block)
	}
}

// Buffered reports how many samples are waiting for a full block.
func (f *Framer) Buffered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Reset drops any partially filled block.
func (f *Framer) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = make([]float32, 0, f.blockSize)
}
