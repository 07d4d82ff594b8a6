// Package config loads room tuning parameters from CUE files.
//
// The schema lives in CUE itself: defaults, types, and bounds are declared
// in one place and enforced by unification, so a config file only states
// what it overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/klikkflow/collab/internal/lock"
	"github.com/klikkflow/collab/internal/room"
)

// schema declares the room configuration surface with defaults and bounds.
const schema = `
#Room: {
	// Canvas units below which two concurrent positions blend instead of
	// one winning outright.
	min_spacing: int & >0 | *48

	history: {
		// Entity windows retained for conflict detection.
		max_entities: int & >0 | *4096
		// Finalized operations retained per entity.
		window_size: int & >0 | *64
		// Age bound per retained operation (Go duration string).
		window_age: string | *"2m"
	}

	// Advisory field lease duration (Go duration string).
	lock_ttl: string | *"30s"

	// In-flight operation allowance per session.
	max_pending: int & >0 | *256

	// Outbound event channel capacity.
	event_buffer: int & >0 | *256
}

room: #Room
`

// RoomConfig is the decoded room tuning.
type RoomConfig struct {
	MinSpacing         int64
	HistoryMaxEntities int
	HistoryWindowSize  int
	HistoryWindowAge   time.Duration
	LockTTL            time.Duration
	MaxPending         int
	EventBuffer        int
}

// Default returns the configuration with every schema default applied.
func Default() RoomConfig {
	cfg, err := decode(cuecontext.New().CompileString(schema))
	if err != nil {
		// The embedded schema always decodes; a failure here is a
		// programming error.
		panic(err)
	}
	return cfg
}

// Load reads a CUE file and unifies it with the room schema.
//
// The file sets fields under "room", for example:
//
//	room: {
//		min_spacing: 64
//		lock_ttl:    "10s"
//	}
//
// Unset fields take schema defaults. Violations (wrong type, out of bounds,
// unknown field) are reported with their CUE source position.
func Load(path string) (RoomConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RoomConfig{}, fmt.Errorf("load config: %w", err)
	}
	return Parse(path, data)
}

// Parse unifies CUE source with the room schema and decodes it.
func Parse(filename string, data []byte) (RoomConfig, error) {
	ctx := cuecontext.New()

	schemaVal := ctx.CompileString(schema, cue.Filename("room-schema.cue"))
	if err := schemaVal.Err(); err != nil {
		return RoomConfig{}, fmt.Errorf("parse config schema: %s", cueerrors.Details(err, nil))
	}

	fileVal := ctx.CompileBytes(data, cue.Filename(filename))
	if err := fileVal.Err(); err != nil {
		return RoomConfig{}, fmt.Errorf("parse config: %s", cueerrors.Details(err, nil))
	}

	unified := schemaVal.Unify(fileVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return RoomConfig{}, fmt.Errorf("validate config: %s", cueerrors.Details(err, nil))
	}

	return decode(unified)
}

// wireConfig mirrors the CUE shape; durations travel as strings.
type wireConfig struct {
	MinSpacing int64 `json:"min_spacing"`
	History    struct {
		MaxEntities int    `json:"max_entities"`
		WindowSize  int    `json:"window_size"`
		WindowAge   string `json:"window_age"`
	} `json:"history"`
	LockTTL     string `json:"lock_ttl"`
	MaxPending  int    `json:"max_pending"`
	EventBuffer int    `json:"event_buffer"`
}

func decode(v cue.Value) (RoomConfig, error) {
	roomVal := v.LookupPath(cue.ParsePath("room"))
	if err := roomVal.Err(); err != nil {
		return RoomConfig{}, fmt.Errorf("decode config: %s", cueerrors.Details(err, nil))
	}

	var w wireConfig
	if err := roomVal.Decode(&w); err != nil {
		return RoomConfig{}, fmt.Errorf("decode config: %s", cueerrors.Details(err, nil))
	}

	windowAge, err := time.ParseDuration(w.History.WindowAge)
	if err != nil {
		return RoomConfig{}, fmt.Errorf("decode config: history.window_age: %w", err)
	}
	lockTTL, err := time.ParseDuration(w.LockTTL)
	if err != nil {
		return RoomConfig{}, fmt.Errorf("decode config: lock_ttl: %w", err)
	}

	return RoomConfig{
		MinSpacing:         w.MinSpacing,
		HistoryMaxEntities: w.History.MaxEntities,
		HistoryWindowSize:  w.History.WindowSize,
		HistoryWindowAge:   windowAge,
		LockTTL:            lockTTL,
		MaxPending:         w.MaxPending,
		EventBuffer:        w.EventBuffer,
	}, nil
}

// RoomOptions converts the configuration to room options.
func (c RoomConfig) RoomOptions() []room.Option {
	return []room.Option{
		room.WithMinSpacing(c.MinSpacing),
		room.WithHistoryBounds(c.HistoryMaxEntities, c.HistoryWindowSize, c.HistoryWindowAge),
		room.WithMaxPending(c.MaxPending),
		room.WithEventBuffer(c.EventBuffer),
		room.WithLockManager(lock.NewManager(lock.WithTTL(c.LockTTL))),
	}
}
