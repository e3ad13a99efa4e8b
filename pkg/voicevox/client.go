// Package voicevox provides an HTTP client for a VOICEVOX-compatible speech
// synthesis engine.
//
// Synthesis is a two-step exchange: POST /audio_query builds an acoustic
// query document for a given text and speaker, then POST /synthesis renders
// that document to WAV audio. The query document is treated as opaque except
// for a fixed set of acoustic fields (speed, pitch, intonation, volume and
// pre/post phoneme silence) which the client overwrites with the caller's
// parameters before rendering.
//
// The engine runs in batch mode — one HTTP round-trip per step — so every
// request carries the client's configured timeout to keep callers from
// blocking indefinitely on a wedged engine.
package voicevox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultBaseURL = "http://localhost:50021"
	defaultTimeout = 30 * time.Second

	audioQueryEndpoint = "/audio_query"
	synthesisEndpoint  = "/synthesis"
	speakersEndpoint   = "/speakers"
	versionEndpoint    = "/version"
)

// ErrUnavailable indicates the engine could not be reached at all (network
// error or timeout). The utterance that triggered it is lost; the engine may
// come back at any time.
var ErrUnavailable = errors.New("voicevox: engine unavailable")

// ErrRejected indicates the engine was reachable but returned a non-success
// status for either synthesis step, e.g. an unknown speaker ID.
var ErrRejected = errors.New("voicevox: request rejected")

// Parameters are the acoustic fields merged into every query document before
// rendering. Zero values are written through as-is; callers are expected to
// pass fully resolved parameters (see the profile store).
type Parameters struct {
	SpeedScale        float64 `json:"speedScale"`
	PitchScale        float64 `json:"pitchScale"`
	IntonationScale   float64 `json:"intonationScale"`
	VolumeScale       float64 `json:"volumeScale"`
	PrePhonemeLength  float64 `json:"prePhonemeLength"`
	PostPhonemeLength float64 `json:"postPhonemeLength"`
}

// Style is a single selectable voice style of a speaker.
type Style struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Speaker is one entry of the engine's voice catalogue. The style IDs, not
// the speaker UUIDs, are what the synthesis endpoints accept.
type Speaker struct {
	Name   string  `json:"name"`
	Styles []Style `json:"styles"`
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client. Mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Client talks to a single VOICEVOX engine. It is stateless apart from the
// engine address and is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client for the engine at baseURL. An empty baseURL falls back
// to the conventional local engine address.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Synthesize renders text spoken by the given speaker style into WAV bytes.
// params overwrite the corresponding fields of the acoustic query document
// between the two engine calls.
//
// Returns an error wrapping [ErrUnavailable] when the engine cannot be
// reached and [ErrRejected] when it answers with a non-success status. There
// is no retry at this layer.
func (c *Client) Synthesize(ctx context.Context, text string, speakerID int, params Parameters) ([]byte, error) {
	query, err := c.audioQuery(ctx, text, speakerID)
	if err != nil {
		return nil, err
	}

	merged, err := mergeParameters(query, params)
	if err != nil {
		return nil, fmt.Errorf("voicevox: merge query parameters: %w", err)
	}

	return c.synthesis(ctx, merged, speakerID)
}

// audioQuery performs the first synthesis step and returns the raw query
// document.
func (c *Client) audioQuery(ctx context.Context, text string, speakerID int) ([]byte, error) {
	q := url.Values{}
	q.Set("text", text)
	q.Set("speaker", strconv.Itoa(speakerID))
	u := c.baseURL + audioQueryEndpoint + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return nil, fmt.Errorf("voicevox: build audio_query request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: audio_query: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: audio_query returned %d: %s", ErrRejected, resp.StatusCode, bytes.TrimSpace(body))
	}

	return io.ReadAll(resp.Body)
}

// synthesis performs the second synthesis step, rendering the query document
// to WAV bytes.
func (c *Client) synthesis(ctx context.Context, query []byte, speakerID int) ([]byte, error) {
	q := url.Values{}
	q.Set("speaker", strconv.Itoa(speakerID))
	u := c.baseURL + synthesisEndpoint + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(query))
	if err != nil {
		return nil, fmt.Errorf("voicevox: build synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: synthesis: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: synthesis returned %d: %s", ErrRejected, resp.StatusCode, bytes.TrimSpace(body))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read synthesis response: %v", ErrUnavailable, err)
	}
	return audio, nil
}

// Speakers fetches the engine's voice catalogue. Best effort: any failure
// yields an empty slice and a nil error so display surfaces degrade instead
// of failing.
func (c *Client) Speakers(ctx context.Context) []Speaker {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+speakersEndpoint, nil)
	if err != nil {
		return nil
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var speakers []Speaker
	if err := json.NewDecoder(resp.Body).Decode(&speakers); err != nil {
		return nil
	}
	return speakers
}

// SpeakerName resolves a style ID to a "Name（Style）" label from the
// catalogue, falling back to a generic label when the catalogue is
// unavailable or the ID is unknown.
func (c *Client) SpeakerName(ctx context.Context, styleID int) string {
	for _, sp := range c.Speakers(ctx) {
		for _, st := range sp.Styles {
			if st.ID == styleID {
				return fmt.Sprintf("%s（%s）", sp.Name, st.Name)
			}
		}
	}
	return fmt.Sprintf("Speaker %d", styleID)
}

// CheckReachable reports whether the engine answers its version endpoint.
// Advisory only; a false result never gates submission.
func (c *Client) CheckReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+versionEndpoint, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// mergeParameters overwrites the acoustic fields of a query document with
// params, leaving every other field of the document untouched.
func mergeParameters(query []byte, params Parameters) ([]byte, error) {
	var doc map[string]any
	if err := json.Unmarshal(query, &doc); err != nil {
		return nil, err
	}
	doc["speedScale"] = params.SpeedScale
	doc["pitchScale"] = params.PitchScale
	doc["intonationScale"] = params.IntonationScale
	doc["volumeScale"] = params.VolumeScale
	doc["prePhonemeLength"] = params.PrePhonemeLength
	doc["postPhonemeLength"] = params.PostPhonemeLength
	return json.Marshal(doc)
}
