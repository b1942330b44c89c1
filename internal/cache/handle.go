package cache

import (
	"errors"
	"sync"

	"github.com/klauspost/compress/s2"
)

var (
	// ErrReleased is returned when reading a handle whose audio has been
	// released. The cache removes entries from its map before releasing,
	// so hitting this through a cache read indicates a caller kept a
	// stale Entry.
	ErrReleased = errors.New("cache: audio handle released")

	// ErrUnreadable is returned when the stored payload cannot be
	// decoded. Callers treat it as a cache miss, never as a failure.
	ErrUnreadable = errors.New("cache: audio data corrupted")
)

// Handle exclusively owns one synthesized audio payload. The payload is
// stored s2-compressed; Bytes returns a decompressed copy so playback
// never aliases cache-owned memory, and releasing a handle mid-playback
// cannot invalidate audio that is already playing.
type Handle struct {
	mu         sync.Mutex
	compressed []byte
	rawSize    int
	sampleRate int
	channels   int
	released   bool
}

// NewHandle takes ownership of pcm and stores it compressed.
func NewHandle(pcm []byte, sampleRate, channels int) *Handle {
	return &Handle{
		compressed: s2.Encode(nil, pcm),
		rawSize:    len(pcm),
		sampleRate: sampleRate,
		channels:   channels,
	}
}

// Bytes returns a decompressed copy of the audio payload.
func (h *Handle) Bytes() ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return nil, ErrReleased
	}
	pcm, err := s2.Decode(nil, h.compressed)
	if err != nil {
		return nil, ErrUnreadable
	}
	return pcm, nil
}

// SampleRate reports the sample rate the payload was synthesized at.
func (h *Handle) SampleRate() int { return h.sampleRate }

// Channels reports the payload's channel count.
func (h *Handle) Channels() int { return h.channels }

// StoredSize reports the compressed payload size in bytes.
func (h *Handle) StoredSize() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.compressed)
}

// RawSize reports the uncompressed payload size in bytes.
func (h *Handle) RawSize() int { return h.rawSize }

// Released reports whether the handle's audio has been released.
func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// Release frees the payload. Releasing twice is a no-op, never a fault.
func (h *Handle) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return
	}
	h.released = true
	h.compressed = nil
}

// corrupt is a test hook that destroys the stored payload in place.
func (h *Handle) corrupt() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.compressed = []byte{0xff, 0x00, 0xff}
}
