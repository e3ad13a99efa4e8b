// Package profile holds per-room voice configuration: a default speaker, a
// set of per-submitter speaker overrides, and the acoustic parameters applied
// to every synthesis request for the room.
//
// Two implementations exist: [MemoryStore] (default, process lifetime) and
// [PostgresStore] (settings survive restarts; queue state never does).
package profile

import (
	"context"
	"sort"
	"sync"

	"github.com/kotoyomi/kotoyomi/pkg/voicevox"
)

// Acoustic parameter bounds. Out-of-range input is clamped, never rejected.
const (
	MinSpeedScale      = 0.5
	MaxSpeedScale      = 2.0
	MinPitchScale      = -0.15
	MaxPitchScale      = 0.15
	MinIntonationScale = 0.0
	MaxIntonationScale = 2.0
	MinVolumeScale     = 0.5
	MaxVolumeScale     = 2.0
	MinSilence         = 0.0
	MaxSilence         = 1.5
)

// DefaultParameters returns the acoustic parameters a room starts with.
func DefaultParameters() voicevox.Parameters {
	return voicevox.Parameters{
		SpeedScale:        1.0,
		PitchScale:        0.0,
		IntonationScale:   1.0,
		VolumeScale:       1.0,
		PrePhonemeLength:  0.1,
		PostPhonemeLength: 0.1,
	}
}

// ParameterUpdate is a partial update of a room's acoustic parameters. Nil
// fields are left unchanged; set fields are clamped to their bounds.
type ParameterUpdate struct {
	SpeedScale        *float64
	PitchScale        *float64
	IntonationScale   *float64
	VolumeScale       *float64
	PrePhonemeLength  *float64
	PostPhonemeLength *float64
}

// UserVoice pairs a submitter with their per-room speaker override.
type UserVoice struct {
	UserID  string
	VoiceID int
}

// Store is the per-room voice configuration store. Implementations must
// serialise concurrent reads and writes; a submission resolving its voice and
// a settings command can race on the same room.
type Store interface {
	// EffectiveVoice resolves the speaker for a submitter in a room:
	// submitter override if present, else room default, else the system
	// default supplied at construction. An empty submitterID skips the
	// override lookup.
	EffectiveVoice(ctx context.Context, roomID, submitterID string) (int, error)

	SetRoomDefault(ctx context.Context, roomID string, voiceID int) error
	SetUserOverride(ctx context.Context, roomID, submitterID string, voiceID int) error
	ClearUserOverride(ctx context.Context, roomID, submitterID string) error

	// RoomDefault returns the room's default speaker (system default when
	// the room has never been configured).
	RoomDefault(ctx context.Context, roomID string) (int, error)

	// Parameters returns the room's acoustic parameters, lazily falling
	// back to [DefaultParameters] for unconfigured rooms.
	Parameters(ctx context.Context, roomID string) (voicevox.Parameters, error)

	// UpdateParameters applies upd field-wise, clamps each set field, and
	// returns the resulting parameters.
	UpdateParameters(ctx context.Context, roomID string, upd ParameterUpdate) (voicevox.Parameters, error)

	// UserOverrides lists a room's per-submitter overrides ordered by user ID.
	UserOverrides(ctx context.Context, roomID string) ([]UserVoice, error)
}

// clampParameters bounds every acoustic field in place.
func clampParameters(p voicevox.Parameters) voicevox.Parameters {
	p.SpeedScale = clamp(p.SpeedScale, MinSpeedScale, MaxSpeedScale)
	p.PitchScale = clamp(p.PitchScale, MinPitchScale, MaxPitchScale)
	p.IntonationScale = clamp(p.IntonationScale, MinIntonationScale, MaxIntonationScale)
	p.VolumeScale = clamp(p.VolumeScale, MinVolumeScale, MaxVolumeScale)
	p.PrePhonemeLength = clamp(p.PrePhonemeLength, MinSilence, MaxSilence)
	p.PostPhonemeLength = clamp(p.PostPhonemeLength, MinSilence, MaxSilence)
	return p
}

// apply merges upd into p without clamping; callers clamp the result.
func (upd ParameterUpdate) apply(p voicevox.Parameters) voicevox.Parameters {
	if upd.SpeedScale != nil {
		p.SpeedScale = *upd.SpeedScale
	}
	if upd.PitchScale != nil {
		p.PitchScale = *upd.PitchScale
	}
	if upd.IntonationScale != nil {
		p.IntonationScale = *upd.IntonationScale
	}
	if upd.VolumeScale != nil {
		p.VolumeScale = *upd.VolumeScale
	}
	if upd.PrePhonemeLength != nil {
		p.PrePhonemeLength = *upd.PrePhonemeLength
	}
	if upd.PostPhonemeLength != nil {
		p.PostPhonemeLength = *upd.PostPhonemeLength
	}
	return p
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Compile-time interface assertion.
var _ Store = (*MemoryStore)(nil)

// roomProfile is the in-memory per-room record.
type roomProfile struct {
	defaultVoice  *int
	userOverrides map[string]int
	params        *voicevox.Parameters
}

// MemoryStore keeps all profiles in process memory. Rooms are created on
// first reference and live for the process lifetime, mirroring the queue
// registry. Safe for concurrent use.
type MemoryStore struct {
	mu            sync.RWMutex
	systemDefault int
	rooms         map[string]*roomProfile
}

// NewMemoryStore creates a MemoryStore with the given system default speaker.
func NewMemoryStore(systemDefaultVoice int) *MemoryStore {
	return &MemoryStore{
		systemDefault: systemDefaultVoice,
		rooms:         make(map[string]*roomProfile),
	}
}

// room returns the record for roomID, creating it if needed. Caller must hold mu.
func (s *MemoryStore) room(roomID string) *roomProfile {
	r, ok := s.rooms[roomID]
	if !ok {
		r = &roomProfile{userOverrides: make(map[string]int)}
		s.rooms[roomID] = r
	}
	return r
}

func (s *MemoryStore) EffectiveVoice(_ context.Context, roomID, submitterID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return s.systemDefault, nil
	}
	if submitterID != "" {
		if v, ok := r.userOverrides[submitterID]; ok {
			return v, nil
		}
	}
	if r.defaultVoice != nil {
		return *r.defaultVoice, nil
	}
	return s.systemDefault, nil
}

func (s *MemoryStore) SetRoomDefault(_ context.Context, roomID string, voiceID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room(roomID).defaultVoice = &voiceID
	return nil
}

func (s *MemoryStore) SetUserOverride(_ context.Context, roomID, submitterID string, voiceID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room(roomID).userOverrides[submitterID] = voiceID
	return nil
}

func (s *MemoryStore) ClearUserOverride(_ context.Context, roomID, submitterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[roomID]; ok {
		delete(r.userOverrides, submitterID)
	}
	return nil
}

func (s *MemoryStore) RoomDefault(_ context.Context, roomID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.rooms[roomID]; ok && r.defaultVoice != nil {
		return *r.defaultVoice, nil
	}
	return s.systemDefault, nil
}

func (s *MemoryStore) Parameters(_ context.Context, roomID string) (voicevox.Parameters, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.rooms[roomID]; ok && r.params != nil {
		return *r.params, nil
	}
	return DefaultParameters(), nil
}

func (s *MemoryStore) UpdateParameters(_ context.Context, roomID string, upd ParameterUpdate) (voicevox.Parameters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.room(roomID)
	current := DefaultParameters()
	if r.params != nil {
		current = *r.params
	}
	next := clampParameters(upd.apply(current))
	r.params = &next
	return next, nil
}

func (s *MemoryStore) UserOverrides(_ context.Context, roomID string) ([]UserVoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, nil
	}
	out := make([]UserVoice, 0, len(r.userOverrides))
	for user, voice := range r.userOverrides {
		out = append(out, UserVoice{UserID: user, VoiceID: voice})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}
