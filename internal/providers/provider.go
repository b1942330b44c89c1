// Package providers defines the uniform contract the speech orchestrator
// uses to talk to synthesis backends. Exactly two implementations exist:
// the on-device adapter and the cloud adapter. The set is closed and
// resolved once per request, never re-detected per call.
package providers

import (
	"context"
	"errors"

	"github.com/hearsay-app/hearsay/internal/voices"
)

// Typed failures. The orchestrator maps these onto its user-facing
// taxonomy; adapters must return them (possibly wrapped) rather than
// ad hoc errors so the fallback policy can be expressed in one place.
var (
	// ErrTimeout means the backend never started speaking or responding
	// within its deadline.
	ErrTimeout = errors.New("provider: synthesis timed out")

	// ErrEngineFailure means the on-device engine reported an explicit
	// error event.
	ErrEngineFailure = errors.New("provider: engine reported an error")

	// ErrCanceled means the request was deliberately canceled. It is
	// never a failure: no fallback, no user-visible error.
	ErrCanceled = errors.New("provider: synthesis canceled")

	// ErrUnreachable means the cloud service could not be reached.
	ErrUnreachable = errors.New("provider: service unreachable")

	// ErrVoiceRejected means the service rejected the voice id.
	ErrVoiceRejected = errors.New("provider: voice rejected")

	// ErrRequestRejected means the service rejected the request itself,
	// e.g. oversized text. Never retried.
	ErrRequestRejected = errors.New("provider: request rejected")

	// ErrPauseUnsupported is returned by playbacks that cannot pause.
	ErrPauseUnsupported = errors.New("provider: pause not supported")

	// ErrLiveRateUnsupported is returned by playbacks that cannot change
	// rate mid-flight; the caller restarts the request instead.
	ErrLiveRateUnsupported = errors.New("provider: live rate change not supported")
)

// Request is one synthesis request.
type Request struct {
	Text  string
	Voice voices.Voice
	Rate  float64
}

// Result is a playable handle. Exactly one of PCM or Live is set: cloud
// synthesis yields PCM for the caller to play (and cache); on-device
// synthesis yields a Live playback the engine already owns.
type Result struct {
	PCM        []byte
	SampleRate int
	Channels   int

	Live Playback

	// Cloud accounting, as reported by the service. ServerCached refers
	// to the service's own cache and is independent of the local one.
	CostUnits    float64
	ServerCached bool
}

// Playback is a live, controllable utterance or audio stream.
type Playback interface {
	// Done yields exactly one value when playback finishes: nil for
	// natural completion or deliberate cancellation, an error otherwise.
	Done() <-chan error

	// Pause suspends playback without canceling the underlying resource.
	Pause() error

	// Resume continues a paused playback.
	Resume() error

	// SetRate adjusts the playback rate live, or returns
	// ErrLiveRateUnsupported.
	SetRate(rate float64) error

	// Stop cancels playback and releases session-local resources.
	// Idempotent; safe from any state.
	Stop()
}

// Provider is a synthesis backend.
type Provider interface {
	// Kind reports which backend this is.
	Kind() voices.ProviderKind

	// Voices reports the currently available voices for catalog refresh.
	Voices(ctx context.Context) ([]voices.Voice, error)

	// Synthesize resolves with a playable handle or rejects with one of
	// the typed failures above.
	Synthesize(ctx context.Context, req Request) (*Result, error)
}
