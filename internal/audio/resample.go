package audio

import (
	"io"
	"math"
	"sync"
)

const bytesPerSample = 2 // signed 16-bit little-endian

// rateReader serves PCM frames to the audio device while applying a
// playback-rate multiplier by nearest-neighbor resampling. The rate can
// change between reads, which is what makes live rate adjustment possible
// for cache-backed playback.
type rateReader struct {
	mu       sync.Mutex
	pcm      []byte
	channels int
	pos      float64 // source frame cursor
	rate     float64
}

func newRateReader(pcm []byte, channels int, rate float64) *rateReader {
	if rate <= 0 {
		rate = 1.0
	}
	return &rateReader{pcm: pcm, channels: channels, rate: rate}
}

// SetRate updates the resampling ratio for subsequent reads.
func (r *rateReader) SetRate(rate float64) {
	if rate <= 0 {
		return
	}
	r.mu.Lock()
	r.rate = rate
	r.mu.Unlock()
}

// Exhausted reports whether the source has been fully served.
func (r *rateReader) Exhausted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(r.pos) >= r.frameCount()
}

func (r *rateReader) frameCount() int {
	return len(r.pcm) / (bytesPerSample * r.channels)
}

// Read fills p with output frames, stepping through the source at the
// current rate. At rate 2.0 every other source frame is skipped; at 0.5
// frames are duplicated.
func (r *rateReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frameSize := bytesPerSample * r.channels
	total := r.frameCount()
	if int(r.pos) >= total {
		return 0, io.EOF
	}

	n := 0
	for n+frameSize <= len(p) {
		src := int(math.Floor(r.pos))
		if src >= total {
			break
		}
		copy(p[n:n+frameSize], r.pcm[src*frameSize:(src+1)*frameSize])
		n += frameSize
		r.pos += r.rate
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}
