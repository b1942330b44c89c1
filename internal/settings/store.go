// Package settings persists the shared speech state that every running
// context agrees on: whether speech is enabled, the playback rate, and the
// preferred voice.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
)

// Rate bounds. Values outside this range are clamped, never rejected.
const (
	MinRate = 0.5
	MaxRate = 3.0
)

// Shared is the state mirrored across contexts.
type Shared struct {
	Enabled         bool    `yaml:"enabled" json:"enabled"`
	Rate            float64 `yaml:"rate" json:"rate"`
	SelectedVoiceID string  `yaml:"selected_voice_id" json:"selectedVoiceId"`
}

// Default returns the state used before anything has been persisted.
func Default() Shared {
	return Shared{Enabled: true, Rate: 1.0}
}

// Normalize clamps the rate into the supported range and fills a zero rate
// with the default.
func (s Shared) Normalize() Shared {
	switch {
	case s.Rate == 0:
		s.Rate = 1.0
	case s.Rate < MinRate:
		s.Rate = MinRate
	case s.Rate > MaxRate:
		s.Rate = MaxRate
	}
	return s
}

// Store persists Shared to a YAML file. Reads after the initial load are
// served from memory; only writes touch the disk.
type Store struct {
	mu    sync.Mutex
	path  string
	viper *viper.Viper
	state Shared
}

// DefaultPath returns the per-user settings file location.
func DefaultPath() (string, error) {
	scope := gap.NewScope(gap.User, "hearsay")
	dir, err := scope.DataPath("")
	if err != nil {
		return "", fmt.Errorf("resolve settings directory: %w", err)
	}
	return filepath.Join(dir, "state.yml"), nil
}

// Open loads the store at path, creating the file with defaults when it
// does not exist yet.
func Open(path string) (*Store, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	st := &Store{path: path, viper: v, state: Default()}

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read settings file: %w", err)
			}
		}
		if err := st.flush(); err != nil {
			return nil, err
		}
		return st, nil
	}

	st.state = Shared{
		Enabled:         v.GetBool("enabled"),
		Rate:            v.GetFloat64("rate"),
		SelectedVoiceID: v.GetString("selected_voice_id"),
	}.Normalize()
	return st, nil
}

// Load returns the current state.
func (s *Store) Load() Shared {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Save normalizes and persists the state. The in-memory copy is updated
// even when the disk write fails, so callers keep working offline.
func (s *Store) Save(state Shared) (Shared, error) {
	state = state.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	return state, s.flush()
}

// Path returns the backing file location.
func (s *Store) Path() string { return s.path }

func (s *Store) flush() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}
	s.viper.Set("enabled", s.state.Enabled)
	s.viper.Set("rate", s.state.Rate)
	s.viper.Set("selected_voice_id", s.state.SelectedVoiceID)
	if err := s.viper.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("write settings file: %w", err)
	}
	return nil
}
