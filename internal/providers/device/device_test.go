package device

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/hearsay-app/hearsay/internal/providers"
	"github.com/hearsay-app/hearsay/internal/voices"
)

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

// fakeUtterance is a scriptable engine utterance.
type fakeUtterance struct {
	startedCh chan struct{}
	endedCh   chan struct{}
	errCh     chan error

	mu       sync.Mutex
	canceled bool
}

func newFakeUtterance() *fakeUtterance {
	return &fakeUtterance{
		startedCh: make(chan struct{}),
		endedCh:   make(chan struct{}),
		errCh:     make(chan error, 1),
	}
}

func (u *fakeUtterance) Started() <-chan struct{} { return u.startedCh }
func (u *fakeUtterance) Ended() <-chan struct{}   { return u.endedCh }
func (u *fakeUtterance) Err() <-chan error        { return u.errCh }
func (u *fakeUtterance) Pause() error             { return nil }
func (u *fakeUtterance) Resume() error            { return nil }
func (u *fakeUtterance) SetRate(float64) error    { return nil }

func (u *fakeUtterance) Cancel() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.canceled = true
}

func (u *fakeUtterance) wasCanceled() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.canceled
}

// fakeEngine records spoken texts and hands out scripted utterances.
type fakeEngine struct {
	mu     sync.Mutex
	spoken []string
	script func(text string) *fakeUtterance
}

func (e *fakeEngine) Speak(_ context.Context, text string, _ voices.Voice, _ float64) (Utterance, error) {
	e.mu.Lock()
	e.spoken = append(e.spoken, text)
	e.mu.Unlock()
	return e.script(text), nil
}

func (e *fakeEngine) Voices(context.Context) ([]voices.Voice, error) {
	return []voices.Voice{{ID: "en", Provider: voices.OnDevice, Language: "en-US", IsLocal: true}}, nil
}

func (e *fakeEngine) spokenTexts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.spoken))
	copy(out, e.spoken)
	return out
}

// instant returns utterances that start and end immediately.
func instant(text string) *fakeUtterance {
	u := newFakeUtterance()
	close(u.startedCh)
	close(u.endedCh)
	return u
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.StartTimeout = 100 * time.Millisecond
	cfg.PrimerTimeout = 50 * time.Millisecond
	return cfg
}

func testRequest() providers.Request {
	return providers.Request{
		Text:  "hello world",
		Voice: voices.Voice{ID: "en", Provider: voices.OnDevice, Language: "en-US"},
		Rate:  1.0,
	}
}

func TestSynthesizePrimesFirstUtterance(t *testing.T) {
	engine := &fakeEngine{script: instant}
	a := New(engine, testConfig(), testLogger())

	result, err := a.Synthesize(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Synthesize error: %v", err)
	}
	if result.Live == nil {
		t.Fatal("expected a live playback")
	}

	spoken := engine.spokenTexts()
	if len(spoken) != 2 {
		t.Fatalf("spoke %d utterances, want primer + real", len(spoken))
	}
	if spoken[0] != a.cfg.PrimerText {
		t.Errorf("first utterance = %q, want primer", spoken[0])
	}
	if spoken[1] != "hello world" {
		t.Errorf("second utterance = %q, want the real text", spoken[1])
	}
}

func TestSynthesizeSkipsPrimerWhenWarm(t *testing.T) {
	engine := &fakeEngine{script: instant}
	a := New(engine, testConfig(), testLogger())

	if _, err := a.Synthesize(context.Background(), testRequest()); err != nil {
		t.Fatalf("first Synthesize error: %v", err)
	}
	if _, err := a.Synthesize(context.Background(), testRequest()); err != nil {
		t.Fatalf("second Synthesize error: %v", err)
	}

	// primer + real + real: the second request rides the warm engine.
	if spoken := engine.spokenTexts(); len(spoken) != 3 {
		t.Errorf("spoke %d utterances, want 3", len(spoken))
	}
}

func TestPrimerTimeoutDoesNotStallRequest(t *testing.T) {
	// The primer never completes; the real utterance must still go out
	// once the primer's own timeout elapses.
	engine := &fakeEngine{}
	var primer *fakeUtterance
	engine.script = func(text string) *fakeUtterance {
		if text == "." {
			primer = newFakeUtterance() // never starts, never ends
			return primer
		}
		return instant(text)
	}

	a := New(engine, testConfig(), testLogger())

	start := time.Now()
	_, err := a.Synthesize(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Synthesize error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("request stalled %v on a dead primer", elapsed)
	}
	if primer == nil || !primer.wasCanceled() {
		t.Error("timed-out primer was not canceled")
	}
}

func TestSynthesizeTimesOutWhenEngineNeverStarts(t *testing.T) {
	engine := &fakeEngine{}
	engine.script = func(text string) *fakeUtterance {
		if text == "." {
			return instant(text)
		}
		return newFakeUtterance() // real utterance never starts
	}

	a := New(engine, testConfig(), testLogger())

	_, err := a.Synthesize(context.Background(), testRequest())
	if !errors.Is(err, providers.ErrTimeout) {
		t.Errorf("Synthesize = %v, want ErrTimeout", err)
	}
}

func TestSynthesizeEngineError(t *testing.T) {
	engine := &fakeEngine{}
	engine.script = func(text string) *fakeUtterance {
		if text == "." {
			return instant(text)
		}
		u := newFakeUtterance()
		u.errCh <- errors.New("audio device busy")
		return u
	}

	a := New(engine, testConfig(), testLogger())

	_, err := a.Synthesize(context.Background(), testRequest())
	if !errors.Is(err, providers.ErrEngineFailure) {
		t.Errorf("Synthesize = %v, want ErrEngineFailure", err)
	}
}

func TestCancellationIsNotAFailure(t *testing.T) {
	engine := &fakeEngine{}
	var real *fakeUtterance
	engine.script = func(text string) *fakeUtterance {
		if text == "." {
			return instant(text)
		}
		real = newFakeUtterance()
		close(real.startedCh) // starts, then hangs until canceled
		return real
	}

	a := New(engine, testConfig(), testLogger())

	result, err := a.Synthesize(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Synthesize error: %v", err)
	}

	result.Live.Stop()
	select {
	case err := <-result.Live.Done():
		if err != nil {
			t.Errorf("Done() after Stop = %v, want nil (cancellation is not a failure)", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Done() never fired after Stop")
	}
	if !real.wasCanceled() {
		t.Error("Stop did not cancel the engine utterance")
	}
}

func TestLivePlaybackCompletes(t *testing.T) {
	engine := &fakeEngine{}
	var real *fakeUtterance
	engine.script = func(text string) *fakeUtterance {
		if text == "." {
			return instant(text)
		}
		real = newFakeUtterance()
		close(real.startedCh)
		return real
	}

	a := New(engine, testConfig(), testLogger())
	result, err := a.Synthesize(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Synthesize error: %v", err)
	}

	close(real.endedCh)
	select {
	case err := <-result.Live.Done():
		if err != nil {
			t.Errorf("Done() = %v, want nil on natural completion", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Done() never fired after the engine ended")
	}
}

func TestExecEngineVoicesAreLocal(t *testing.T) {
	engine := NewExecEngine(DefaultExecConfig(), testLogger())
	vs, err := engine.Voices(context.Background())
	if err != nil {
		t.Fatalf("Voices error: %v", err)
	}
	if len(vs) == 0 {
		t.Fatal("no configured voices")
	}
	for _, v := range vs {
		if !v.IsLocal || v.Provider != voices.OnDevice {
			t.Errorf("voice %q not flagged as local on-device", v.ID)
		}
	}
}
