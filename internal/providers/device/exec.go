package device

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/hearsay-app/hearsay/internal/providers"
	"github.com/hearsay-app/hearsay/internal/voices"
)

// ExecConfig configures the subprocess speech engine.
type ExecConfig struct {
	// Binary is the speech command, e.g. "espeak-ng" or "say".
	Binary string `yaml:"binary" env:"HEARSAY_DEVICE_BINARY" envDefault:"espeak-ng"`

	// BaseWPM is the engine's words-per-minute at rate 1.0.
	BaseWPM int `yaml:"base_wpm" env:"HEARSAY_DEVICE_BASE_WPM" envDefault:"175"`

	// KillGrace is how long to wait after SIGINT before SIGKILL.
	KillGrace time.Duration `yaml:"kill_grace" env:"HEARSAY_DEVICE_KILL_GRACE" envDefault:"500ms"`

	// Voices lists the installed voices; the engine cannot enumerate
	// them portably, so they come from configuration.
	Voices []ExecVoice `yaml:"voices"`
}

// ExecVoice describes one configured subprocess voice.
type ExecVoice struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Language string `yaml:"language"`
}

// DefaultExecConfig returns the default subprocess engine settings.
func DefaultExecConfig() ExecConfig {
	return ExecConfig{
		Binary:    "espeak-ng",
		BaseWPM:   175,
		KillGrace: 500 * time.Millisecond,
		Voices: []ExecVoice{
			{ID: "en", Name: "English", Language: "en-US"},
		},
	}
}

// ExecEngine speaks by running a local synthesis binary per utterance. The
// process plays audio through its own output path; pause and resume map to
// SIGSTOP and SIGCONT.
type ExecEngine struct {
	cfg    ExecConfig
	logger *log.Logger
}

var _ Engine = (*ExecEngine)(nil)

// NewExecEngine creates a subprocess-backed speech engine.
func NewExecEngine(cfg ExecConfig, logger *log.Logger) *ExecEngine {
	if cfg.Binary == "" {
		cfg.Binary = DefaultExecConfig().Binary
	}
	if cfg.BaseWPM <= 0 {
		cfg.BaseWPM = DefaultExecConfig().BaseWPM
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = DefaultExecConfig().KillGrace
	}
	return &ExecEngine{cfg: cfg, logger: logger}
}

// Available reports whether the configured binary is on PATH.
func (e *ExecEngine) Available() bool {
	_, err := exec.LookPath(e.cfg.Binary)
	return err == nil
}

// Voices lists the configured voices, flagged local.
func (e *ExecEngine) Voices(context.Context) ([]voices.Voice, error) {
	out := make([]voices.Voice, 0, len(e.cfg.Voices))
	for _, v := range e.cfg.Voices {
		out = append(out, voices.Voice{
			ID:          v.ID,
			Provider:    voices.OnDevice,
			Language:    v.Language,
			DisplayName: v.Name,
			IsLocal:     true,
		})
	}
	return out, nil
}

// Speak starts the synthesis process and reports its lifecycle.
func (e *ExecEngine) Speak(ctx context.Context, text string, voice voices.Voice, rate float64) (Utterance, error) {
	wpm := int(float64(e.cfg.BaseWPM) * rate)
	if wpm <= 0 {
		wpm = e.cfg.BaseWPM
	}

	//nolint:gosec // binary and voice come from trusted configuration
	cmd := exec.Command(e.cfg.Binary, "-v", voice.ID, "-s", strconv.Itoa(wpm), text)

	u := &execUtterance{
		cmd:       cmd,
		grace:     e.cfg.KillGrace,
		logger:    e.logger,
		startedCh: make(chan struct{}),
		endedCh:   make(chan struct{}),
		errCh:     make(chan error, 1),
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", e.cfg.Binary, err)
	}
	close(u.startedCh)

	go u.wait(ctx)
	return u, nil
}

type execUtterance struct {
	cmd    *exec.Cmd
	grace  time.Duration
	logger *log.Logger

	startedCh chan struct{}
	endedCh   chan struct{}
	errCh     chan error

	mu       sync.Mutex
	canceled bool
}

func (u *execUtterance) wait(ctx context.Context) {
	waitDone := make(chan error, 1)
	go func() { waitDone <- u.cmd.Wait() }()

	select {
	case err := <-waitDone:
		u.mu.Lock()
		canceled := u.canceled
		u.mu.Unlock()
		switch {
		case canceled:
			u.errCh <- providers.ErrCanceled
		case err != nil:
			u.errCh <- err
		default:
			close(u.endedCh)
		}
	case <-ctx.Done():
		u.Cancel()
		<-waitDone
		u.errCh <- providers.ErrCanceled
	}
}

func (u *execUtterance) Started() <-chan struct{} { return u.startedCh }
func (u *execUtterance) Ended() <-chan struct{}   { return u.endedCh }
func (u *execUtterance) Err() <-chan error        { return u.errCh }

func (u *execUtterance) Pause() error {
	return u.signal(syscall.SIGSTOP)
}

func (u *execUtterance) Resume() error {
	return u.signal(syscall.SIGCONT)
}

// SetRate cannot change a running process's speech rate; the caller
// restarts the request instead.
func (u *execUtterance) SetRate(float64) error {
	return providers.ErrLiveRateUnsupported
}

// Cancel interrupts the process, escalating to SIGKILL after the grace
// period. Safe to call more than once.
func (u *execUtterance) Cancel() {
	u.mu.Lock()
	if u.canceled {
		u.mu.Unlock()
		return
	}
	u.canceled = true
	u.mu.Unlock()

	if err := u.signal(syscall.SIGINT); err != nil {
		return
	}
	go func() {
		timer := time.NewTimer(u.grace)
		defer timer.Stop()
		select {
		case <-u.endedCh:
		case <-timer.C:
			if err := u.signal(syscall.SIGKILL); err == nil {
				u.logger.Debug("speech process killed after grace period")
			}
		}
	}()
}

func (u *execUtterance) signal(sig syscall.Signal) error {
	if u.cmd.Process == nil {
		return fmt.Errorf("process not started")
	}
	return u.cmd.Process.Signal(sig)
}
