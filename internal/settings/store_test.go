package settings

import (
	"path/filepath"
	"testing"
)

func TestNormalizeClampsRate(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"zero fills default", 0, 1.0},
		{"below minimum", 0.1, MinRate},
		{"at minimum", 0.5, 0.5},
		{"typical", 1.5, 1.5},
		{"at maximum", 3.0, 3.0},
		{"above maximum", 10, MaxRate},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := (Shared{Rate: tc.in}).Normalize()
			if got.Rate != tc.want {
				t.Errorf("Normalize rate %v = %v, want %v", tc.in, got.Rate, tc.want)
			}
		})
	}
}

func TestOpenCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yml")

	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	got := st.Load()
	if !got.Enabled {
		t.Error("default state not enabled")
	}
	if got.Rate != 1.0 {
		t.Errorf("default rate = %v, want 1.0", got.Rate)
	}
	if got.SelectedVoiceID != "" {
		t.Errorf("default voice = %q, want empty", got.SelectedVoiceID)
	}
}

func TestSaveRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yml")

	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := st.Save(Shared{Enabled: false, Rate: 1.75, SelectedVoiceID: "nova"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A second Open simulates another process loading the file.
	st2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got := st2.Load()
	if got.Enabled {
		t.Error("enabled not persisted")
	}
	if got.Rate != 1.75 {
		t.Errorf("rate = %v, want 1.75", got.Rate)
	}
	if got.SelectedVoiceID != "nova" {
		t.Errorf("voice = %q, want nova", got.SelectedVoiceID)
	}
}

func TestSaveClampsBeforePersisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yml")

	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	saved, err := st.Save(Shared{Enabled: true, Rate: 99})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.Rate != MaxRate {
		t.Errorf("saved rate = %v, want %v", saved.Rate, MaxRate)
	}

	st2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := st2.Load().Rate; got != MaxRate {
		t.Errorf("persisted rate = %v, want %v", got, MaxRate)
	}
}
