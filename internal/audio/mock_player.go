package audio

import (
	"sync"

	"github.com/hearsay-app/hearsay/internal/providers"
)

// MockPlayer is a hardware-free player for tests. Playbacks complete only
// when finished manually, which lets tests hold a session in the playing
// state deterministically.
type MockPlayer struct {
	mu        sync.Mutex
	playbacks []*MockPlayback
}

// NewMockPlayer creates an idle mock player.
func NewMockPlayer() *MockPlayer {
	return &MockPlayer{}
}

// Play records the request and returns a manually-driven playback.
func (m *MockPlayer) Play(pcm []byte, sampleRate, channels int, rate float64) (providers.Playback, error) {
	pb := &MockPlayback{
		PCM:  pcm,
		rate: rate,
		done: make(chan error, 1),
	}
	m.mu.Lock()
	m.playbacks = append(m.playbacks, pb)
	m.mu.Unlock()
	return pb, nil
}

// Playbacks returns every playback created so far.
func (m *MockPlayer) Playbacks() []*MockPlayback {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*MockPlayback, len(m.playbacks))
	copy(out, m.playbacks)
	return out
}

// Last returns the most recent playback, or nil.
func (m *MockPlayer) Last() *MockPlayback {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.playbacks) == 0 {
		return nil
	}
	return m.playbacks[len(m.playbacks)-1]
}

// ActiveCount reports how many playbacks are neither finished nor stopped.
func (m *MockPlayer) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, pb := range m.playbacks {
		if pb.active() {
			n++
		}
	}
	return n
}

// MockPlayback is a playback completed by the test, not by hardware.
type MockPlayback struct {
	PCM []byte

	mu       sync.Mutex
	rate     float64
	paused   bool
	stopped  bool
	finished bool
	done     chan error
	once     sync.Once
}

var _ providers.Playback = (*MockPlayback)(nil)

// Finish completes the playback as if the audio ran out.
func (pb *MockPlayback) Finish() {
	pb.mu.Lock()
	pb.finished = true
	pb.mu.Unlock()
	pb.once.Do(func() { pb.done <- nil })
}

// Fail completes the playback with an error, as if the device vanished.
func (pb *MockPlayback) Fail(err error) {
	pb.mu.Lock()
	pb.finished = true
	pb.mu.Unlock()
	pb.once.Do(func() { pb.done <- err })
}

// Done implements providers.Playback.
func (pb *MockPlayback) Done() <-chan error { return pb.done }

// Pause implements providers.Playback.
func (pb *MockPlayback) Pause() error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.paused = true
	return nil
}

// Resume implements providers.Playback.
func (pb *MockPlayback) Resume() error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.paused = false
	return nil
}

// SetRate implements providers.Playback.
func (pb *MockPlayback) SetRate(rate float64) error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.rate = rate
	return nil
}

// Stop implements providers.Playback.
func (pb *MockPlayback) Stop() {
	pb.mu.Lock()
	pb.stopped = true
	pb.mu.Unlock()
	pb.once.Do(func() { pb.done <- nil })
}

// Paused reports whether the playback is paused.
func (pb *MockPlayback) Paused() bool {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.paused
}

// Rate reports the current playback rate.
func (pb *MockPlayback) Rate() float64 {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.rate
}

// Stopped reports whether Stop was called.
func (pb *MockPlayback) Stopped() bool {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.stopped
}

func (pb *MockPlayback) active() bool {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return !pb.stopped && !pb.finished
}
