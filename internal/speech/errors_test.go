package speech

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hearsay-app/hearsay/internal/cache"
	"github.com/hearsay-app/hearsay/internal/providers"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"timeout", providers.ErrTimeout, FailureTimeout},
		{"wrapped timeout", fmt.Errorf("synthesize: %w", providers.ErrTimeout), FailureTimeout},
		{"request rejected", providers.ErrRequestRejected, FailureRejected},
		{"voice rejected", providers.ErrVoiceRejected, FailureRejected},
		{"unreachable", providers.ErrUnreachable, FailureUnreachable},
		{"engine failure", providers.ErrEngineFailure, FailureEngine},
		{"cache unreadable", cache.ErrUnreadable, FailureCache},
		{"cache released", cache.ErrReleased, FailureCache},
		{"plain error", errors.New("boom"), FailureUnknown},
		{"already classified", NewFailure(FailureNoVoice, errors.New("x")), FailureNoVoice},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Errorf("Classify(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestFailureUnwraps(t *testing.T) {
	f := NewFailure(FailureUnreachable, fmt.Errorf("post: %w", providers.ErrUnreachable))
	if !errors.Is(f, providers.ErrUnreachable) {
		t.Error("Failure does not unwrap to the provider error")
	}
	if f.Error() == "" {
		t.Error("empty failure message")
	}
}

func TestRetriableOnDevice(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unreachable falls back", providers.ErrUnreachable, true},
		{"timeout falls back", providers.ErrTimeout, true},
		{"voice rejected falls back", providers.ErrVoiceRejected, true},
		{"request rejected never retried", providers.ErrRequestRejected, false},
		{"cancellation is not a failure", providers.ErrCanceled, false},
		{"engine failure stays put", providers.ErrEngineFailure, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := retriableOnDevice(tc.err); got != tc.want {
				t.Errorf("retriableOnDevice(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
