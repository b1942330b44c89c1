package audio

import (
	"io"
	"testing"
)

// pcmFrames builds mono 16-bit PCM where frame i holds the value i.
func pcmFrames(n int) []byte {
	out := make([]byte, n*bytesPerSample)
	for i := 0; i < n; i++ {
		out[i*2] = byte(i)
		out[i*2+1] = 0
	}
	return out
}

func readAllFrames(t *testing.T, r *rateReader) []byte {
	t.Helper()
	var out []byte
	buf := make([]byte, 8)
	for {
		n, err := r.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Read error: %v", err)
		}
	}
}

func TestRateReaderUnityRate(t *testing.T) {
	src := pcmFrames(10)
	r := newRateReader(src, 1, 1.0)

	got := readAllFrames(t, r)
	if len(got) != len(src) {
		t.Fatalf("read %d bytes, want %d", len(got), len(src))
	}
	for i := range src {
		if got[i] != src[i] {
			t.Fatalf("byte %d = %d, want %d", i, got[i], src[i])
		}
	}
}

func TestRateReaderDoubleRateHalvesOutput(t *testing.T) {
	r := newRateReader(pcmFrames(10), 1, 2.0)
	got := readAllFrames(t, r)

	if frames := len(got) / bytesPerSample; frames != 5 {
		t.Errorf("got %d frames at rate 2.0, want 5", frames)
	}
}

func TestRateReaderHalfRateDoublesOutput(t *testing.T) {
	r := newRateReader(pcmFrames(10), 1, 0.5)
	got := readAllFrames(t, r)

	if frames := len(got) / bytesPerSample; frames != 20 {
		t.Errorf("got %d frames at rate 0.5, want 20", frames)
	}
}

func TestRateReaderLiveRateChange(t *testing.T) {
	r := newRateReader(pcmFrames(100), 1, 1.0)

	buf := make([]byte, 20*bytesPerSample)
	if _, err := r.Read(buf); err != nil {
		t.Fatalf("Read error: %v", err)
	}

	// Speeding up mid-stream must not restart or error.
	r.SetRate(2.0)
	rest := readAllFrames(t, r)

	if frames := len(rest) / bytesPerSample; frames != 40 {
		t.Errorf("got %d frames after live change to 2.0, want 40", frames)
	}
}

func TestRateReaderExhausted(t *testing.T) {
	r := newRateReader(pcmFrames(4), 1, 1.0)
	if r.Exhausted() {
		t.Error("Exhausted before any read")
	}
	readAllFrames(t, r)
	if !r.Exhausted() {
		t.Error("not Exhausted after EOF")
	}
}

func TestRateReaderIgnoresInvalidRate(t *testing.T) {
	r := newRateReader(pcmFrames(10), 1, 1.0)
	r.SetRate(0)
	r.SetRate(-1)

	got := readAllFrames(t, r)
	if frames := len(got) / bytesPerSample; frames != 10 {
		t.Errorf("invalid rates changed output: %d frames, want 10", frames)
	}
}

func TestMockPlayerTracksActivePlaybacks(t *testing.T) {
	m := NewMockPlayer()
	pb1, err := m.Play([]byte("a"), 22050, 1, 1.0)
	if err != nil {
		t.Fatalf("Play error: %v", err)
	}
	if _, err := m.Play([]byte("b"), 22050, 1, 1.0); err != nil {
		t.Fatalf("Play error: %v", err)
	}

	if got := m.ActiveCount(); got != 2 {
		t.Fatalf("ActiveCount = %d, want 2", got)
	}

	pb1.Stop()
	m.Last().Finish()

	if got := m.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount = %d after stop/finish, want 0", got)
	}
}
