// Package mock provides a scriptable synthesis provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/hearsay-app/hearsay/internal/providers"
	"github.com/hearsay-app/hearsay/internal/voices"
)

// Provider is a configurable fake backend. By default it returns a small
// PCM payload; set Err to script failures or Live to hand out live
// playbacks like the on-device adapter does.
type Provider struct {
	ProviderKind voices.ProviderKind
	VoiceList    []voices.Voice

	// Err, when non-nil, is returned from every Synthesize call.
	Err error

	// PCM is the payload returned on success; defaults to a small blob.
	PCM []byte

	// LiveFactory, when set, makes Synthesize return live playbacks
	// instead of PCM.
	LiveFactory func() providers.Playback

	// Gate, when non-nil, blocks each Synthesize call after it is
	// recorded until the channel is closed. Lets tests hold a request
	// in flight.
	Gate chan struct{}

	mu    sync.Mutex
	calls []providers.Request
}

var _ providers.Provider = (*Provider)(nil)

// Kind reports the configured provider kind.
func (p *Provider) Kind() voices.ProviderKind { return p.ProviderKind }

// Voices returns the configured voice list.
func (p *Provider) Voices(context.Context) ([]voices.Voice, error) {
	return p.VoiceList, nil
}

// Synthesize records the request and returns the scripted outcome.
func (p *Provider) Synthesize(_ context.Context, req providers.Request) (*providers.Result, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	p.mu.Unlock()

	if p.Gate != nil {
		<-p.Gate
	}

	if p.Err != nil {
		return nil, p.Err
	}
	if p.LiveFactory != nil {
		return &providers.Result{Live: p.LiveFactory()}, nil
	}

	pcm := p.PCM
	if pcm == nil {
		pcm = []byte("mock-pcm")
	}
	return &providers.Result{PCM: pcm, SampleRate: 22050, Channels: 1}, nil
}

// Calls returns a copy of the recorded synthesis requests.
func (p *Provider) Calls() []providers.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]providers.Request, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallCount reports how many synthesis requests were made.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// Playback is a manually-driven playback for tests.
type Playback struct {
	done chan error
	once sync.Once

	mu      sync.Mutex
	paused  bool
	rate    float64
	rateErr error
	stopped bool
}

var _ providers.Playback = (*Playback)(nil)

// NewPlayback creates an idle test playback.
func NewPlayback() *Playback {
	return &Playback{done: make(chan error, 1)}
}

// NewPlaybackWithoutLiveRate creates a playback that rejects live rate
// changes, forcing the restart path.
func NewPlaybackWithoutLiveRate() *Playback {
	p := NewPlayback()
	p.rateErr = providers.ErrLiveRateUnsupported
	return p
}

// Finish completes the playback naturally.
func (p *Playback) Finish() {
	p.once.Do(func() { p.done <- nil })
}

// Fail completes the playback with an error.
func (p *Playback) Fail(err error) {
	p.once.Do(func() { p.done <- err })
}

// Done implements providers.Playback.
func (p *Playback) Done() <-chan error { return p.done }

// Pause implements providers.Playback.
func (p *Playback) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
	return nil
}

// Resume implements providers.Playback.
func (p *Playback) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
	return nil
}

// SetRate implements providers.Playback.
func (p *Playback) SetRate(rate float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rateErr != nil {
		return p.rateErr
	}
	p.rate = rate
	return nil
}

// Stop implements providers.Playback.
func (p *Playback) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.once.Do(func() { p.done <- nil })
}

// Paused reports whether the playback is currently paused.
func (p *Playback) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Rate reports the last live rate applied.
func (p *Playback) Rate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate
}

// Stopped reports whether Stop was called.
func (p *Playback) Stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}
