// Package audio plays synthesized PCM through the system's audio device.
// It wraps oto with a playback handle that supports pause, resume and live
// rate changes.
package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"

	"github.com/hearsay-app/hearsay/internal/providers"
)

// Format is the sample format providers synthesize into.
const Format = oto.FormatSignedInt16LE

// readyTimeout bounds audio context initialization; some platforms take a
// while to hand over the device.
const readyTimeout = 5 * time.Second

// Player owns the process-wide audio context. oto allows only one context
// per process, so Player is created once and shared.
type Player struct {
	mu         sync.Mutex
	context    *oto.Context
	sampleRate int
	channels   int
	logger     *log.Logger
}

// NewPlayer initializes the audio context for the given PCM shape.
func NewPlayer(sampleRate, channels int, logger *log.Logger) (*Player, error) {
	options := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       Format,
	}

	context, readyChan, err := oto.NewContext(options)
	if err != nil {
		return nil, fmt.Errorf("create audio context: %w", err)
	}

	select {
	case <-readyChan:
	case <-time.After(readyTimeout):
		return nil, fmt.Errorf("audio context initialization timed out after %v", readyTimeout)
	}

	logger.Debug("audio context ready", "sample_rate", sampleRate, "channels", channels)
	return &Player{
		context:    context,
		sampleRate: sampleRate,
		channels:   channels,
		logger:     logger,
	}, nil
}

// Play starts playing pcm at the given rate and returns a controllable
// playback handle. The pcm slice is owned by the playback until it ends.
func (p *Player) Play(pcm []byte, sampleRate, channels int, rate float64) (providers.Playback, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if sampleRate != p.sampleRate || channels != p.channels {
		// oto contexts are fixed-shape; resampling between rates is the
		// provider's job. Mismatches indicate a misconfigured provider.
		return nil, fmt.Errorf("pcm shape %d/%d does not match audio context %d/%d",
			sampleRate, channels, p.sampleRate, p.channels)
	}

	reader := newRateReader(pcm, channels, rate)
	player := p.context.NewPlayer(reader)
	player.Play()

	pb := &Playback{
		player: player,
		reader: reader,
		done:   make(chan error, 1),
		stopCh: make(chan struct{}),
	}
	go pb.watch()
	return pb, nil
}

var _ providers.Playback = (*Playback)(nil)

// Playback is one in-flight PCM playback.
type Playback struct {
	player *oto.Player
	reader *rateReader
	done   chan error

	mu      sync.Mutex
	paused  bool
	stopped bool
	stopCh  chan struct{}
}

// watch polls for completion; oto has no completion callback.
func (pb *Playback) watch() {
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-pb.stopCh:
			pb.done <- nil
			return
		case <-ticker.C:
			pb.mu.Lock()
			paused := pb.paused
			pb.mu.Unlock()
			if paused {
				continue
			}
			if pb.reader.Exhausted() && !pb.player.IsPlaying() {
				if err := pb.player.Close(); err != nil {
					pb.done <- err
					return
				}
				pb.done <- nil
				return
			}
		}
	}
}

// Done reports playback completion.
func (pb *Playback) Done() <-chan error { return pb.done }

// Pause suspends playback without releasing the audio.
func (pb *Playback) Pause() error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.stopped || pb.paused {
		return nil
	}
	pb.paused = true
	pb.player.Pause()
	return nil
}

// Resume continues a paused playback.
func (pb *Playback) Resume() error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.stopped || !pb.paused {
		return nil
	}
	pb.paused = false
	pb.player.Play()
	return nil
}

// SetRate changes the playback rate live. Cache-backed audio supports this
// without interrupting playback.
func (pb *Playback) SetRate(rate float64) error {
	pb.reader.SetRate(rate)
	return nil
}

// Stop cancels playback. Idempotent.
func (pb *Playback) Stop() {
	pb.mu.Lock()
	if pb.stopped {
		pb.mu.Unlock()
		return
	}
	pb.stopped = true
	pb.mu.Unlock()

	pb.player.Pause()
	_ = pb.player.Close()
	close(pb.stopCh)
}
