package voicevox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// newEngineServer spins up a fake VOICEVOX engine that answers the two
// synthesis endpoints. The synthesis handler captures the merged query
// document so tests can assert on the parameter overwrite.
func newEngineServer(t *testing.T, audio []byte, captured *map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /audio_query", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("text") == "" {
			http.Error(w, "missing text", http.StatusUnprocessableEntity)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"accent_phrases":  []any{},
			"speedScale":      1.0,
			"pitchScale":      0.0,
			"intonationScale": 1.0,
			"volumeScale":     1.0,
			"outputSamplingRate": 24000,
		})
	})
	mux.HandleFunc("POST /synthesis", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if captured != nil {
			var doc map[string]any
			if err := json.Unmarshal(body, &doc); err != nil {
				t.Errorf("synthesis body is not JSON: %v", err)
			}
			*captured = doc
		}
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(audio)
	})
	mux.HandleFunc("GET /speakers", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]Speaker{
			{Name: "ずんだもん", Styles: []Style{{ID: 3, Name: "ノーマル"}, {ID: 1, Name: "あまあま"}}},
			{Name: "四国めたん", Styles: []Style{{ID: 2, Name: "ノーマル"}}},
		})
	})
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`"0.14.0"`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSynthesize_MergesParameters(t *testing.T) {
	t.Parallel()

	want := []byte("RIFF-fake-wav")
	var captured map[string]any
	srv := newEngineServer(t, want, &captured)

	c := New(srv.URL)
	got, err := c.Synthesize(context.Background(), "こんにちは", 3, Parameters{
		SpeedScale:        1.5,
		PitchScale:        0.1,
		IntonationScale:   1.2,
		VolumeScale:       0.8,
		PrePhonemeLength:  0.1,
		PostPhonemeLength: 0.1,
	})
	if err != nil {
		t.Fatalf("Synthesize: unexpected error: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("Synthesize returned %q, want %q", got, want)
	}

	if captured["speedScale"] != 1.5 {
		t.Errorf("speedScale = %v, want 1.5", captured["speedScale"])
	}
	if captured["pitchScale"] != 0.1 {
		t.Errorf("pitchScale = %v, want 0.1", captured["pitchScale"])
	}
	if captured["volumeScale"] != 0.8 {
		t.Errorf("volumeScale = %v, want 0.8", captured["volumeScale"])
	}
	// Fields outside the fixed overwrite set must pass through untouched.
	if _, ok := captured["accent_phrases"]; !ok {
		t.Error("accent_phrases was dropped from the query document")
	}
	if captured["outputSamplingRate"] != float64(24000) {
		t.Errorf("outputSamplingRate = %v, want 24000", captured["outputSamplingRate"])
	}
}

func TestSynthesize_RejectedStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown speaker", http.StatusUnprocessableEntity)
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL)
	_, err := c.Synthesize(context.Background(), "hello", 999, Parameters{})
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("Synthesize error = %v, want ErrRejected", err)
	}
}

func TestSynthesize_Unreachable(t *testing.T) {
	t.Parallel()

	// A closed server is indistinguishable from a down engine.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := New(srv.URL, WithTimeout(time.Second))
	_, err := c.Synthesize(context.Background(), "hello", 1, Parameters{})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Synthesize error = %v, want ErrUnavailable", err)
	}
}

func TestSpeakers_BestEffort(t *testing.T) {
	t.Parallel()

	srv := newEngineServer(t, nil, nil)
	c := New(srv.URL)

	speakers := c.Speakers(context.Background())
	if len(speakers) != 2 {
		t.Fatalf("Speakers returned %d entries, want 2", len(speakers))
	}
	if speakers[0].Styles[0].ID != 3 {
		t.Errorf("first style ID = %d, want 3", speakers[0].Styles[0].ID)
	}

	// Down engine: empty slice, no panic.
	down := New("http://127.0.0.1:1", WithTimeout(500*time.Millisecond))
	if got := down.Speakers(context.Background()); len(got) != 0 {
		t.Errorf("Speakers on unreachable engine = %v, want empty", got)
	}
}

func TestSpeakerName(t *testing.T) {
	t.Parallel()

	srv := newEngineServer(t, nil, nil)
	c := New(srv.URL)

	if got := c.SpeakerName(context.Background(), 1); got != "ずんだもん（あまあま）" {
		t.Errorf("SpeakerName(1) = %q", got)
	}
	if got := c.SpeakerName(context.Background(), 42); got != "Speaker 42" {
		t.Errorf("SpeakerName(42) = %q, want fallback label", got)
	}
}

func TestCheckReachable(t *testing.T) {
	t.Parallel()

	srv := newEngineServer(t, nil, nil)
	c := New(srv.URL)
	if !c.CheckReachable(context.Background()) {
		t.Error("CheckReachable = false against a live engine")
	}

	down := New("http://127.0.0.1:1", WithTimeout(500*time.Millisecond))
	if down.CheckReachable(context.Background()) {
		t.Error("CheckReachable = true against an unreachable engine")
	}
}
