// Package difficulty defines the canonical difficulty scale used across the
// client and the normalization of every external representation onto it.
package difficulty

import (
	"log/slog"
	"strconv"
	"strings"
)

// Level is the canonical ordinal difficulty.
type Level int

const (
	Easy Level = iota + 1
	Medium
	Hard
	Expert
)

// Default is used whenever an external representation cannot be resolved.
// Normalization is total: it never fails, it degrades to Default.
const Default = Medium

// legacy aliases still emitted by older backend versions
var legacyAliases = map[string]Level{
	"beginner":     Easy,
	"novice":       Easy,
	"intermediate": Medium,
	"moderate":     Medium,
	"advanced":     Hard,
	"master":       Expert,
}

var canonicalNames = map[string]Level{
	"easy":   Easy,
	"medium": Medium,
	"hard":   Hard,
	"expert": Expert,
}

// Valid reports whether l is one of the four canonical levels.
func (l Level) Valid() bool {
	return l >= Easy && l <= Expert
}

// String returns the canonical string form ("easy", "medium", "hard", "expert").
func (l Level) String() string {
	switch l {
	case Easy:
		return "easy"
	case Medium:
		return "medium"
	case Hard:
		return "hard"
	case Expert:
		return "expert"
	default:
		return Default.String()
	}
}

// Label returns the display form ("Easy", "Medium", "Hard", "Expert").
func (l Level) Label() string {
	switch l {
	case Easy:
		return "Easy"
	case Medium:
		return "Medium"
	case Hard:
		return "Hard"
	case Expert:
		return "Expert"
	default:
		return Default.Label()
	}
}

// MarshalJSON encodes the canonical string form on the wire.
func (l Level) MarshalJSON() ([]byte, error) {
	return []byte(`"` + l.String() + `"`), nil
}

// UnmarshalJSON accepts any representation Normalize accepts.
func (l *Level) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	*l = Normalize(s)
	return nil
}

// Normalize maps a heterogeneous difficulty representation to a canonical
// Level. Accepted inputs are ordinals (any integer or float kind), canonical
// strings, legacy strings, numeric strings and nil. Unknown or missing input
// resolves to Default so callers never have to handle a normalization error.
// Normalize is idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(input any) Level {
	switch v := input.(type) {
	case nil:
		return Default
	case Level:
		if v.Valid() {
			return v
		}
		return Default
	case int:
		return normalizeOrdinal(v)
	case int32:
		return normalizeOrdinal(int(v))
	case int64:
		return normalizeOrdinal(int(v))
	case float32:
		return normalizeOrdinal(int(v))
	case float64:
		// JSON numbers decode as float64.
		return normalizeOrdinal(int(v))
	case string:
		return NormalizeString(v)
	default:
		slog.Debug("unrecognized difficulty representation", "value", input)
		return Default
	}
}

// NormalizeString maps a string representation to a canonical Level.
func NormalizeString(s string) Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Default
	}
	if l, ok := canonicalNames[s]; ok {
		return l
	}
	if l, ok := legacyAliases[s]; ok {
		return l
	}
	if n, err := strconv.Atoi(s); err == nil {
		return normalizeOrdinal(n)
	}
	slog.Debug("unrecognized difficulty string", "value", s)
	return Default
}

func normalizeOrdinal(n int) Level {
	l := Level(n)
	if l.Valid() {
		return l
	}
	slog.Debug("difficulty ordinal out of range", "value", n)
	return Default
}

// Levels returns the canonical scale in ascending order.
func Levels() []Level {
	return []Level{Easy, Medium, Hard, Expert}
}
