// Package speech drives a single speech session end to end: it picks a
// voice for the utterance, routes synthesis to a provider with fallback,
// caches the audio, and supervises playback.
package speech

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/hearsay-app/hearsay/internal/cache"
	"github.com/hearsay-app/hearsay/internal/lang"
	"github.com/hearsay-app/hearsay/internal/providers"
	"github.com/hearsay-app/hearsay/internal/settings"
	"github.com/hearsay-app/hearsay/internal/voices"
)

// Player turns PCM into an audible, controllable playback.
type Player interface {
	Play(pcm []byte, sampleRate, channels int, rate float64) (providers.Playback, error)
}

// Orchestrator owns the speech session lifecycle. At most one utterance
// plays at a time; starting a new one stops the current one first.
type Orchestrator struct {
	catalog     *voices.Catalog
	cache       *cache.Cache
	device      providers.Provider
	cloud       providers.Provider
	player      Player
	logger      *log.Logger
	preferCloud bool

	events chan Event

	mu       sync.Mutex
	sm       *StateMachine
	shared   settings.Shared
	gen      uint64
	inflight map[string]bool

	// Current session, valid while sm is in an active state.
	playback providers.Playback
	text     string
	voiceID  string
}

// Options configures a new orchestrator. Device and Cloud may each be nil
// when the corresponding backend is unavailable.
type Options struct {
	Catalog *voices.Catalog
	Cache   *cache.Cache
	Device  providers.Provider
	Cloud   providers.Provider
	Player  Player
	Logger  *log.Logger
	Shared  settings.Shared

	// PreferCloud routes auto-selection through cloud voices first; when
	// false an on-device voice wins whenever one covers the language.
	PreferCloud bool
}

// New creates an idle orchestrator.
func New(opts Options) *Orchestrator {
	return &Orchestrator{
		catalog:     opts.Catalog,
		cache:       opts.Cache,
		device:      opts.Device,
		cloud:       opts.Cloud,
		player:      opts.Player,
		logger:      opts.Logger,
		preferCloud: opts.PreferCloud,
		events:      make(chan Event, eventBuffer),
		sm:          NewStateMachine(),
		shared:      opts.Shared.Normalize(),
		inflight:    make(map[string]bool),
	}
}

// Events returns the session notification channel. Events are dropped,
// never blocked on, when the consumer lags.
func (o *Orchestrator) Events() <-chan Event { return o.events }

// State reports the current session phase.
func (o *Orchestrator) State() StateType {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sm.Current()
}

// RefreshVoices reloads the voice catalog from every available provider.
// A provider that cannot report voices keeps its previous entries.
func (o *Orchestrator) RefreshVoices(ctx context.Context) {
	for _, p := range []providers.Provider{o.device, o.cloud} {
		if p == nil {
			continue
		}
		list, err := p.Voices(ctx)
		if err != nil {
			o.logger.Warn("voice listing failed", "provider", p.Kind(), "err", err)
			continue
		}
		o.catalog.Refresh(p.Kind(), list)
	}
}

// Play speaks text, interrupting any current utterance. Speaking the same
// text again while its synthesis is still in flight is a no-op. When
// speech is disabled the call does nothing.
func (o *Orchestrator) Play(ctx context.Context, text string) error {
	o.mu.Lock()

	if !o.shared.Enabled {
		o.mu.Unlock()
		o.logger.Debug("speech disabled, ignoring utterance")
		return nil
	}

	// Repeating the utterance that is already audible or still being
	// produced is a no-op, not a restart.
	if o.sm.Current().Busy() && o.text == text {
		o.mu.Unlock()
		return nil
	}

	o.interruptLocked()
	g := o.gen
	o.sm.Transition(StateResolving)
	o.text = text

	voice, ok := o.resolveVoiceLocked(text)
	if !ok {
		o.sm.Transition(StateError)
		o.sm.Transition(StateIdle)
		failure := NewFailure(FailureNoVoice, fmt.Errorf("no voice covers %q", lang.Detect(text)))
		o.mu.Unlock()
		o.emit(Event{Type: EventFailed, Kind: FailureNoVoice, Err: failure, Text: text})
		return failure
	}

	key := cache.Key(text, voice.ID)

	// The in-flight guard keys on the exact utterance, not the truncated
	// cache key: distinct texts sharing a key prefix collide in storage
	// but must each be spoken.
	flight := text + "\x00" + voice.ID
	if o.inflight[flight] {
		o.sm.Transition(StateIdle)
		o.mu.Unlock()
		return nil
	}

	if entry := o.cache.Get(key); entry != nil {
		pcm, err := entry.Handle.Bytes()
		if err == nil {
			err = o.startPlaybackLocked(g, text, voice.ID, pcm, entry.Handle.SampleRate(), entry.Handle.Channels(), true)
			o.mu.Unlock()
			return err
		}
		o.cache.Remove(key)
		o.logger.Warn("cached audio unreadable, resynthesizing", "key", key, "err", err)
	}

	o.sm.Transition(StateSynthesizing)
	o.inflight[flight] = true
	rate := o.shared.Rate
	o.mu.Unlock()

	result, used, err := o.synthesize(ctx, text, voice, rate)

	o.mu.Lock()
	delete(o.inflight, flight)

	if err != nil {
		current := g == o.gen
		if current {
			if errors.Is(err, providers.ErrCanceled) {
				o.sm.Transition(StateIdle)
				o.mu.Unlock()
				return nil
			}
			o.sm.Transition(StateError)
			o.sm.Transition(StateIdle)
		}
		kind := Classify(err)
		failure := NewFailure(kind, err)
		o.mu.Unlock()
		if current {
			o.emit(Event{Type: EventFailed, Kind: kind, Err: failure, Text: text, VoiceID: voice.ID})
		}
		return failure
	}

	// The cache write happens regardless of whether this session was
	// superseded, so an interrupted synthesis still pays off next time.
	if result.PCM != nil {
		o.cache.Put(cache.Key(text, used.ID), cache.NewHandle(result.PCM, result.SampleRate, result.Channels))
	}

	if g != o.gen {
		o.mu.Unlock()
		return nil
	}

	if result.Live != nil {
		o.playback = result.Live
		o.text = text
		o.voiceID = used.ID
		o.sm.Transition(StatePlaying)
		go o.watch(g, result.Live, text, used.ID, false)
		o.mu.Unlock()
		o.emit(Event{Type: EventStarted, Text: text, VoiceID: used.ID})
		return nil
	}

	err = o.startPlaybackLocked(g, text, used.ID, result.PCM, result.SampleRate, result.Channels, false)
	o.mu.Unlock()
	return err
}

// startPlaybackLocked moves the session into playing. Emits the start
// event itself; the caller only unlocks.
func (o *Orchestrator) startPlaybackLocked(g uint64, text, voiceID string, pcm []byte, sampleRate, channels int, cached bool) error {
	pb, err := o.player.Play(pcm, sampleRate, channels, o.shared.Rate)
	if err != nil {
		o.sm.Transition(StateError)
		o.sm.Transition(StateIdle)
		failure := NewFailure(FailurePlayback, err)
		o.emit(Event{Type: EventFailed, Kind: FailurePlayback, Err: failure, Text: text, VoiceID: voiceID})
		return failure
	}

	o.playback = pb
	o.text = text
	o.voiceID = voiceID
	o.sm.Transition(StatePlaying)
	go o.watch(g, pb, text, voiceID, cached)
	o.emit(Event{Type: EventStarted, Text: text, VoiceID: voiceID, Cached: cached})
	return nil
}

// watch waits for playback to finish and settles the session, unless a
// newer session has already taken over.
func (o *Orchestrator) watch(g uint64, pb providers.Playback, text, voiceID string, cached bool) {
	err := <-pb.Done()

	o.mu.Lock()
	if g != o.gen {
		o.mu.Unlock()
		return
	}
	o.playback = nil

	if err != nil {
		o.sm.Transition(StateError)
		o.sm.Transition(StateIdle)
		kind := Classify(err)
		o.mu.Unlock()
		o.emit(Event{Type: EventFailed, Kind: kind, Err: err, Text: text, VoiceID: voiceID})
		return
	}

	o.sm.Transition(StateEnded)
	o.sm.Transition(StateIdle)
	o.mu.Unlock()
	o.emit(Event{Type: EventEnded, Text: text, VoiceID: voiceID, Cached: cached})
}

// resolveVoiceLocked picks the voice for an utterance: the shared
// selection when it still exists, otherwise the best match for the
// detected language.
func (o *Orchestrator) resolveVoiceLocked(text string) (voices.Voice, bool) {
	if id := o.shared.SelectedVoiceID; id != "" {
		v, ok := o.catalog.ByID(id)
		switch {
		case ok && o.providerFor(v.Provider) != nil:
			return v, true
		case ok:
			o.logger.Warn("selected voice's provider unavailable, auto-selecting", "voice", id)
		default:
			o.logger.Warn("selected voice not available, auto-selecting", "voice", id)
		}
	}
	tag := lang.Detect(text)

	// Cloud-first is a preference, not a mandate: with prefer_cloud off
	// an on-device voice wins whenever one covers the language.
	if !o.preferCloud && o.device != nil {
		if v, ok := o.catalog.BestOnDevice(tag.String()); ok {
			return v, true
		}
	}

	// An unavailable override never fails the utterance outright; fall
	// through to catalog resolution for the detected language.
	v, ok := o.catalog.BestFor(tag.String())
	if ok && o.providerFor(v.Provider) == nil {
		return o.catalog.BestOnDevice(v.Language)
	}
	return v, ok
}

// synthesize routes the request to the voice's provider. A cloud attempt
// that fails for a recoverable reason falls back once to an on-device
// voice; an on-device failure never escalates to the cloud.
func (o *Orchestrator) synthesize(ctx context.Context, text string, voice voices.Voice, rate float64) (*providers.Result, voices.Voice, error) {
	provider := o.providerFor(voice.Provider)
	if provider == nil {
		return nil, voice, NewFailure(FailureUnknown, fmt.Errorf("no %s provider configured", voice.Provider))
	}

	result, err := provider.Synthesize(ctx, providers.Request{Text: text, Voice: voice, Rate: rate})
	if err == nil {
		return result, voice, nil
	}

	if voice.Provider == voices.Cloud && retriableOnDevice(err) && o.device != nil {
		fallback, ok := o.catalog.BestOnDevice(voice.Language)
		if ok {
			o.logger.Info("cloud synthesis failed, falling back to device",
				"voice", voice.ID, "fallback", fallback.ID, "err", err)
			result, fbErr := o.device.Synthesize(ctx, providers.Request{Text: text, Voice: fallback, Rate: rate})
			if fbErr == nil {
				return result, fallback, nil
			}
			return nil, fallback, fbErr
		}
	}

	return nil, voice, err
}

func (o *Orchestrator) providerFor(kind voices.ProviderKind) providers.Provider {
	switch kind {
	case voices.Cloud:
		return o.cloud
	default:
		return o.device
	}
}

// Pause suspends the current playback. A no-op outside of playing.
func (o *Orchestrator) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.sm.Current() != StatePlaying || o.playback == nil {
		return nil
	}
	if err := o.playback.Pause(); err != nil {
		if errors.Is(err, providers.ErrPauseUnsupported) {
			return NewFailure(FailureUnknown, err)
		}
		return err
	}
	o.sm.Transition(StatePaused)
	o.emit(Event{Type: EventPaused, Text: o.text, VoiceID: o.voiceID})
	return nil
}

// Resume continues a paused playback. A no-op outside of paused.
func (o *Orchestrator) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.sm.Current() != StatePaused || o.playback == nil {
		return nil
	}
	if err := o.playback.Resume(); err != nil {
		return err
	}
	o.sm.Transition(StatePlaying)
	o.emit(Event{Type: EventResumed, Text: o.text, VoiceID: o.voiceID})
	return nil
}

// Stop cancels the current utterance. Idempotent; stopping an idle engine
// does nothing.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	stopped := o.interruptLocked()
	text, voiceID := o.text, o.voiceID
	o.mu.Unlock()

	if stopped {
		o.emit(Event{Type: EventStopped, Text: text, VoiceID: voiceID})
	}
}

// interruptLocked tears the current session down and returns whether
// anything was actually playing. Also invalidates in-flight synthesis via
// the generation counter.
func (o *Orchestrator) interruptLocked() bool {
	o.gen++
	stopped := false
	if o.playback != nil {
		o.playback.Stop()
		o.playback = nil
		stopped = true
	}
	if o.sm.Current() != StateIdle {
		o.sm.Transition(StateIdle)
	}
	return stopped
}

// SetRate changes the playback rate. Cache-backed playback adjusts live;
// a live utterance that cannot change rate mid-stream is stopped and
// respoken at the new rate.
func (o *Orchestrator) SetRate(ctx context.Context, rate float64) error {
	o.mu.Lock()
	o.shared.Rate = settings.Shared{Rate: rate}.Normalize().Rate
	pb := o.playback
	text := o.text
	active := o.sm.Current().Active()
	rate = o.shared.Rate
	o.mu.Unlock()

	if !active || pb == nil {
		return nil
	}

	err := pb.SetRate(rate)
	if err == nil {
		return nil
	}
	if !errors.Is(err, providers.ErrLiveRateUnsupported) {
		return err
	}

	// Restart path: the engine cannot bend an in-flight utterance. The
	// session is torn down first so the replay is not mistaken for a
	// repeat of the still-playing text, then respoken from the start at
	// the new rate.
	o.logger.Debug("live rate change unsupported, respeaking", "rate", rate)
	o.mu.Lock()
	o.interruptLocked()
	o.mu.Unlock()
	return o.Play(ctx, text)
}

// ApplyShared reacts to a cross-context state change: disabling speech
// stops everything, a rate change applies to the current utterance, and a
// voice change affects the next utterance.
func (o *Orchestrator) ApplyShared(ctx context.Context, state settings.Shared) error {
	state = state.Normalize()

	o.mu.Lock()
	previous := o.shared
	o.shared.Enabled = state.Enabled
	o.shared.SelectedVoiceID = state.SelectedVoiceID
	o.mu.Unlock()

	if !state.Enabled {
		o.Stop()
		o.mu.Lock()
		o.shared.Rate = state.Rate
		o.mu.Unlock()
		return nil
	}

	if state.Rate != previous.Rate {
		return o.SetRate(ctx, state.Rate)
	}
	return nil
}

// Shared returns the orchestrator's view of the shared state.
func (o *Orchestrator) Shared() settings.Shared {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.shared
}

// Close stops playback and releases the cache.
func (o *Orchestrator) Close() {
	o.Stop()
	if o.cache != nil {
		o.logger.Debug("closing speech engine", "cache", o.cache.Stats())
		o.cache.Close()
	}
}
