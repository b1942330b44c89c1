package syncbus

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/hearsay-app/hearsay/internal/settings"
)

// Member mirrors the shared state in a non-owning context. It requests the
// state exactly once on start and then relies on change broadcasts; reads
// are served from the local mirror without any bus traffic.
type Member struct {
	id       string
	bus      Bus
	logger   *log.Logger
	timeout  time.Duration
	onChange func(settings.Shared)

	mu    sync.Mutex
	state settings.Shared
	sub   Subscription
}

// NewMember creates an unstarted member. onChange may be nil; when set it
// is invoked for every broadcast, including changes this member initiated.
func NewMember(bus Bus, logger *log.Logger, onChange func(settings.Shared)) *Member {
	return &Member{
		id:       uuid.NewString(),
		bus:      bus,
		logger:   logger,
		timeout:  DefaultRequestTimeout,
		onChange: onChange,
		state:    settings.Default(),
	}
}

// ID returns the member's instance identifier.
func (m *Member) ID() string { return m.id }

// Start subscribes to change broadcasts and fetches the initial state.
// The subscription comes first so a change racing the initial fetch is
// never lost. When no owner answers, the member keeps defaults and stays
// usable offline.
func (m *Member) Start() error {
	sub, err := m.bus.Subscribe(SubjectChanged, m.handleChanged)
	if err != nil {
		return fmt.Errorf("subscribe to state changes: %w", err)
	}
	m.sub = sub

	data, err := m.bus.Request(SubjectGet, nil, m.timeout)
	if err != nil {
		m.logger.Warn("initial state fetch failed, using defaults", "err", err)
		return nil
	}
	m.apply(data)
	return nil
}

// State returns the mirrored shared state.
func (m *Member) State() settings.Shared {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetEnabled asks the owner to toggle speech.
func (m *Member) SetEnabled(enabled bool) error {
	desired := m.State()
	desired.Enabled = enabled
	return m.propose(desired)
}

// SetRate asks the owner to change the playback rate. The owner clamps.
func (m *Member) SetRate(rate float64) error {
	desired := m.State()
	desired.Rate = rate
	return m.propose(desired)
}

// SetVoice asks the owner to change the preferred voice.
func (m *Member) SetVoice(voiceID string) error {
	desired := m.State()
	desired.SelectedVoiceID = voiceID
	return m.propose(desired)
}

func (m *Member) propose(desired settings.Shared) error {
	payload, err := json.Marshal(desired)
	if err != nil {
		return err
	}
	data, err := m.bus.Request(SubjectSet, payload, m.timeout)
	if err != nil {
		return fmt.Errorf("propose state change: %w", err)
	}
	// The reply is the accepted state; the broadcast also carries it, but
	// applying here makes the change visible to this member immediately.
	m.apply(data)
	return nil
}

func (m *Member) handleChanged(data []byte) {
	m.apply(data)
}

func (m *Member) apply(data []byte) {
	var state settings.Shared
	if err := json.Unmarshal(data, &state); err != nil {
		m.logger.Warn("dropping malformed state message", "err", err)
		return
	}
	state = state.Normalize()

	m.mu.Lock()
	m.state = state
	cb := m.onChange
	m.mu.Unlock()

	if cb != nil {
		cb(state)
	}
}

// Stop unsubscribes from change broadcasts.
func (m *Member) Stop() {
	if m.sub != nil {
		_ = m.sub.Unsubscribe()
		m.sub = nil
	}
}
