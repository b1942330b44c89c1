// Package device adapts the local OS speech engine to the provider
// contract. The engine is a request/response-with-events API with no
// guaranteed first-utterance correctness, so the adapter primes it with a
// short near-silent utterance after idle periods.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/hearsay-app/hearsay/internal/providers"
	"github.com/hearsay-app/hearsay/internal/voices"
)

// Engine is the external on-device speech engine: submit text, voice and
// rate, receive started/ended/error signals.
type Engine interface {
	// Speak submits an utterance. The returned Utterance reports
	// lifecycle events; it may never fire any, which is why every wait in
	// the adapter is bounded.
	Speak(ctx context.Context, text string, voice voices.Voice, rate float64) (Utterance, error)

	// Voices lists the engine's installed voices.
	Voices(ctx context.Context) ([]voices.Voice, error)
}

// Utterance is one in-flight engine request.
type Utterance interface {
	Started() <-chan struct{}
	Ended() <-chan struct{}
	Err() <-chan error

	Pause() error
	Resume() error
	SetRate(rate float64) error

	// Cancel aborts the utterance. Must be safe to call at any point and
	// more than once.
	Cancel()
}

// Config holds the adapter's timeout and primer settings.
type Config struct {
	// StartTimeout bounds the wait for the engine's "started" signal on
	// the real utterance.
	StartTimeout time.Duration `yaml:"start_timeout" env:"HEARSAY_DEVICE_START_TIMEOUT" envDefault:"4s"`

	// PrimerTimeout bounds the primer utterance so an engine that never
	// fires completion events cannot stall the request.
	PrimerTimeout time.Duration `yaml:"primer_timeout" env:"HEARSAY_DEVICE_PRIMER_TIMEOUT" envDefault:"2s"`

	// PrimerIdleAfter is the idle period after which the next utterance
	// is primed. Engines tend to swallow or garble the first utterance
	// after sitting idle.
	PrimerIdleAfter time.Duration `yaml:"primer_idle_after" env:"HEARSAY_DEVICE_PRIMER_IDLE_AFTER" envDefault:"30s"`

	// PrimerText is the near-silent warm-up utterance.
	PrimerText string `yaml:"primer_text" env:"HEARSAY_DEVICE_PRIMER_TEXT" envDefault:"."`
}

// DefaultConfig returns the default adapter settings.
func DefaultConfig() Config {
	return Config{
		StartTimeout:    4 * time.Second,
		PrimerTimeout:   2 * time.Second,
		PrimerIdleAfter: 30 * time.Second,
		PrimerText:      ".",
	}
}

// Adapter implements providers.Provider over an Engine.
type Adapter struct {
	engine Engine
	cfg    Config
	logger *log.Logger

	mu        sync.Mutex
	lastSpoke time.Time
}

var _ providers.Provider = (*Adapter)(nil)

// New creates an on-device provider adapter.
func New(engine Engine, cfg Config, logger *log.Logger) *Adapter {
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = DefaultConfig().StartTimeout
	}
	if cfg.PrimerTimeout <= 0 {
		cfg.PrimerTimeout = DefaultConfig().PrimerTimeout
	}
	if cfg.PrimerText == "" {
		cfg.PrimerText = DefaultConfig().PrimerText
	}
	return &Adapter{engine: engine, cfg: cfg, logger: logger}
}

// Kind reports the on-device provider kind.
func (a *Adapter) Kind() voices.ProviderKind { return voices.OnDevice }

// Voices lists the engine's installed voices.
func (a *Adapter) Voices(ctx context.Context) ([]voices.Voice, error) {
	return a.engine.Voices(ctx)
}

// Synthesize primes the engine if needed, then speaks. The returned
// result carries a live playback owned by the engine.
func (a *Adapter) Synthesize(ctx context.Context, req providers.Request) (*providers.Result, error) {
	if a.needsPrimer() {
		a.prime(ctx, req)
	}

	utt, err := a.engine.Speak(ctx, req.Text, req.Voice, req.Rate)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", providers.ErrEngineFailure, err)
	}

	// Bounded wait for the started signal; an engine that never starts
	// is a timeout, not an error report.
	select {
	case <-utt.Started():
	case err := <-utt.Err():
		utt.Cancel()
		return nil, engineError(err)
	case <-time.After(a.cfg.StartTimeout):
		utt.Cancel()
		return nil, providers.ErrTimeout
	case <-ctx.Done():
		utt.Cancel()
		return nil, providers.ErrCanceled
	}

	a.markSpoke()
	return &providers.Result{Live: newUtterancePlayback(utt, a.markSpoke)}, nil
}

func (a *Adapter) needsPrimer() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cfg.PrimerIdleAfter <= 0 {
		return a.lastSpoke.IsZero()
	}
	return a.lastSpoke.IsZero() || time.Since(a.lastSpoke) > a.cfg.PrimerIdleAfter
}

func (a *Adapter) markSpoke() {
	a.mu.Lock()
	a.lastSpoke = time.Now()
	a.mu.Unlock()
}

// prime speaks the near-silent warm-up utterance and waits for it, bounded
// by its own timeout. A primer that never completes is logged and
// abandoned; the real utterance proceeds regardless.
func (a *Adapter) prime(ctx context.Context, req providers.Request) {
	primerCtx, cancel := context.WithTimeout(ctx, a.cfg.PrimerTimeout)
	defer cancel()

	utt, err := a.engine.Speak(primerCtx, a.cfg.PrimerText, req.Voice, req.Rate)
	if err != nil {
		a.logger.Debug("primer utterance failed to start", "err", err)
		return
	}

	select {
	case <-utt.Ended():
	case err := <-utt.Err():
		a.logger.Debug("primer utterance errored", "err", err)
	case <-primerCtx.Done():
		a.logger.Debug("primer utterance timed out, proceeding anyway")
		utt.Cancel()
	}
}

func engineError(err error) error {
	if err == nil {
		return providers.ErrEngineFailure
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, providers.ErrCanceled) {
		return providers.ErrCanceled
	}
	return fmt.Errorf("%w: %s", providers.ErrEngineFailure, err)
}

// utterancePlayback bridges engine events to the Playback contract.
type utterancePlayback struct {
	utt     Utterance
	done    chan error
	stopped chan struct{}
	once    sync.Once
}

func newUtterancePlayback(utt Utterance, onEnd func()) *utterancePlayback {
	p := &utterancePlayback{
		utt:     utt,
		done:    make(chan error, 1),
		stopped: make(chan struct{}),
	}
	go func() {
		select {
		case <-utt.Ended():
			onEnd()
			p.done <- nil
		case err := <-utt.Err():
			if e := engineError(err); errors.Is(e, providers.ErrCanceled) {
				p.done <- nil
			} else {
				p.done <- e
			}
		case <-p.stopped:
			// Deliberate cancellation completes cleanly.
			p.done <- nil
		}
	}()
	return p
}

func (p *utterancePlayback) Done() <-chan error { return p.done }

func (p *utterancePlayback) Pause() error { return p.utt.Pause() }

func (p *utterancePlayback) Resume() error { return p.utt.Resume() }

func (p *utterancePlayback) SetRate(rate float64) error { return p.utt.SetRate(rate) }

func (p *utterancePlayback) Stop() {
	p.once.Do(func() {
		p.utt.Cancel()
		close(p.stopped)
	})
}
