package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kotoyomi/kotoyomi/pkg/voicevox"
)

// Compile-time interface assertion.
var _ Store = (*PostgresStore)(nil)

const ddlProfiles = `
CREATE TABLE IF NOT EXISTS room_profiles (
    room_id            TEXT             PRIMARY KEY,
    voice_id           INTEGER,
    speed_scale        DOUBLE PRECISION NOT NULL DEFAULT 1.0,
    pitch_scale        DOUBLE PRECISION NOT NULL DEFAULT 0.0,
    intonation_scale   DOUBLE PRECISION NOT NULL DEFAULT 1.0,
    volume_scale       DOUBLE PRECISION NOT NULL DEFAULT 1.0,
    pre_phoneme_len    DOUBLE PRECISION NOT NULL DEFAULT 0.1,
    post_phoneme_len   DOUBLE PRECISION NOT NULL DEFAULT 0.1
);

CREATE TABLE IF NOT EXISTS user_voices (
    room_id  TEXT    NOT NULL,
    user_id  TEXT    NOT NULL,
    voice_id INTEGER NOT NULL,
    PRIMARY KEY (room_id, user_id)
);
`

// PostgresStore persists per-room voice settings in PostgreSQL so they
// survive process restarts. Queue state is deliberately not persisted.
//
// All operations are safe for concurrent use; per-room serialisation is
// delegated to the database's row-level locking.
type PostgresStore struct {
	pool          *pgxpool.Pool
	systemDefault int
}

// NewPostgresStore connects to the database at dsn, ensures the settings
// tables exist, and returns a store using systemDefaultVoice for rooms with
// no configured default.
func NewPostgresStore(ctx context.Context, dsn string, systemDefaultVoice int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("profile: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("profile: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlProfiles); err != nil {
		pool.Close()
		return nil, fmt.Errorf("profile: migrate: %w", err)
	}
	return &PostgresStore{pool: pool, systemDefault: systemDefaultVoice}, nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) EffectiveVoice(ctx context.Context, roomID, submitterID string) (int, error) {
	if submitterID != "" {
		var v int
		err := s.pool.QueryRow(ctx,
			`SELECT voice_id FROM user_voices WHERE room_id = $1 AND user_id = $2`,
			roomID, submitterID).Scan(&v)
		switch {
		case err == nil:
			return v, nil
		case !errors.Is(err, pgx.ErrNoRows):
			return s.systemDefault, fmt.Errorf("profile: lookup user voice: %w", err)
		}
	}
	return s.RoomDefault(ctx, roomID)
}

func (s *PostgresStore) SetRoomDefault(ctx context.Context, roomID string, voiceID int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO room_profiles (room_id, voice_id) VALUES ($1, $2)
		ON CONFLICT (room_id) DO UPDATE SET voice_id = EXCLUDED.voice_id`,
		roomID, voiceID)
	if err != nil {
		return fmt.Errorf("profile: set room default: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetUserOverride(ctx context.Context, roomID, submitterID string, voiceID int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_voices (room_id, user_id, voice_id) VALUES ($1, $2, $3)
		ON CONFLICT (room_id, user_id) DO UPDATE SET voice_id = EXCLUDED.voice_id`,
		roomID, submitterID, voiceID)
	if err != nil {
		return fmt.Errorf("profile: set user voice: %w", err)
	}
	return nil
}

func (s *PostgresStore) ClearUserOverride(ctx context.Context, roomID, submitterID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM user_voices WHERE room_id = $1 AND user_id = $2`,
		roomID, submitterID)
	if err != nil {
		return fmt.Errorf("profile: clear user voice: %w", err)
	}
	return nil
}

func (s *PostgresStore) RoomDefault(ctx context.Context, roomID string) (int, error) {
	var v *int
	err := s.pool.QueryRow(ctx,
		`SELECT voice_id FROM room_profiles WHERE room_id = $1`, roomID).Scan(&v)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return s.systemDefault, nil
	case err != nil:
		return s.systemDefault, fmt.Errorf("profile: lookup room default: %w", err)
	case v == nil:
		return s.systemDefault, nil
	}
	return *v, nil
}

func (s *PostgresStore) Parameters(ctx context.Context, roomID string) (voicevox.Parameters, error) {
	p := DefaultParameters()
	err := s.pool.QueryRow(ctx, `
		SELECT speed_scale, pitch_scale, intonation_scale, volume_scale,
		       pre_phoneme_len, post_phoneme_len
		FROM room_profiles WHERE room_id = $1`, roomID).
		Scan(&p.SpeedScale, &p.PitchScale, &p.IntonationScale, &p.VolumeScale,
			&p.PrePhonemeLength, &p.PostPhonemeLength)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return DefaultParameters(), nil
	case err != nil:
		return DefaultParameters(), fmt.Errorf("profile: load parameters: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) UpdateParameters(ctx context.Context, roomID string, upd ParameterUpdate) (voicevox.Parameters, error) {
	current, err := s.Parameters(ctx, roomID)
	if err != nil {
		return current, err
	}
	next := clampParameters(upd.apply(current))
	_, err = s.pool.Exec(ctx, `
		INSERT INTO room_profiles (room_id, speed_scale, pitch_scale, intonation_scale,
		                           volume_scale, pre_phoneme_len, post_phoneme_len)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (room_id) DO UPDATE SET
		    speed_scale      = EXCLUDED.speed_scale,
		    pitch_scale      = EXCLUDED.pitch_scale,
		    intonation_scale = EXCLUDED.intonation_scale,
		    volume_scale     = EXCLUDED.volume_scale,
		    pre_phoneme_len  = EXCLUDED.pre_phoneme_len,
		    post_phoneme_len = EXCLUDED.post_phoneme_len`,
		roomID, next.SpeedScale, next.PitchScale, next.IntonationScale,
		next.VolumeScale, next.PrePhonemeLength, next.PostPhonemeLength)
	if err != nil {
		return current, fmt.Errorf("profile: store parameters: %w", err)
	}
	return next, nil
}

func (s *PostgresStore) UserOverrides(ctx context.Context, roomID string) ([]UserVoice, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, voice_id FROM user_voices WHERE room_id = $1 ORDER BY user_id`,
		roomID)
	if err != nil {
		return nil, fmt.Errorf("profile: list user voices: %w", err)
	}
	defer rows.Close()

	var out []UserVoice
	for rows.Next() {
		var uv UserVoice
		if err := rows.Scan(&uv.UserID, &uv.VoiceID); err != nil {
			return nil, fmt.Errorf("profile: scan user voice: %w", err)
		}
		out = append(out, uv)
	}
	return out, rows.Err()
}
