package speech

import (
	"errors"
	"fmt"

	"github.com/hearsay-app/hearsay/internal/cache"
	"github.com/hearsay-app/hearsay/internal/providers"
)

// FailureKind categorizes why a speech session failed. Callers branch on
// the kind to decide what to tell the user.
type FailureKind int

const (
	// FailureUnknown covers everything without a more specific kind.
	FailureUnknown FailureKind = iota
	// FailureNoVoice means no installed or remote voice covers the
	// utterance's language.
	FailureNoVoice
	// FailureTimeout means a provider did not produce audio in time.
	FailureTimeout
	// FailureRejected means a provider refused the request itself; the
	// request will never succeed as-is and is not retried.
	FailureRejected
	// FailureUnreachable means the cloud provider could not be reached.
	FailureUnreachable
	// FailureEngine means the synthesis engine broke mid-utterance.
	FailureEngine
	// FailurePlayback means the audio device failed.
	FailurePlayback
	// FailureCache means a cached payload could not be read back.
	FailureCache
)

// String returns the string representation of the failure kind.
func (k FailureKind) String() string {
	switch k {
	case FailureNoVoice:
		return "no_voice"
	case FailureTimeout:
		return "timeout"
	case FailureRejected:
		return "rejected"
	case FailureUnreachable:
		return "unreachable"
	case FailureEngine:
		return "engine"
	case FailurePlayback:
		return "playback"
	case FailureCache:
		return "cache"
	default:
		return "unknown"
	}
}

// Failure wraps an underlying error with its kind.
type Failure struct {
	Kind FailureKind
	Err  error
}

// Error implements error.
func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("speech failure: %s", f.Kind)
	}
	return fmt.Sprintf("speech failure (%s): %v", f.Kind, f.Err)
}

// Unwrap exposes the underlying error.
func (f *Failure) Unwrap() error { return f.Err }

// NewFailure builds a kinded failure.
func NewFailure(kind FailureKind, err error) *Failure {
	return &Failure{Kind: kind, Err: err}
}

// Classify maps an error to its failure kind. Already-classified failures
// keep their kind.
func Classify(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	switch {
	case errors.Is(err, providers.ErrTimeout):
		return FailureTimeout
	case errors.Is(err, providers.ErrRequestRejected):
		return FailureRejected
	case errors.Is(err, providers.ErrVoiceRejected):
		return FailureRejected
	case errors.Is(err, providers.ErrUnreachable):
		return FailureUnreachable
	case errors.Is(err, providers.ErrEngineFailure):
		return FailureEngine
	case errors.Is(err, cache.ErrUnreadable), errors.Is(err, cache.ErrReleased):
		return FailureCache
	default:
		return FailureUnknown
	}
}

// retriableOnDevice reports whether a cloud failure should fall back to an
// on-device voice. A rejected request would be rejected again anywhere, so
// it never falls back.
func retriableOnDevice(err error) bool {
	switch {
	case errors.Is(err, providers.ErrUnreachable),
		errors.Is(err, providers.ErrTimeout),
		errors.Is(err, providers.ErrVoiceRejected):
		return true
	default:
		return false
	}
}
