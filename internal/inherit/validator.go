// Package inherit validates that a freshly created practice session inherited
// the right difficulty from its parent. The classic bug it guards against is
// a child inheriting the parent's starting difficulty instead of the level
// the adaptive engine had moved the parent to by the end.
package inherit

import (
	"fmt"
	"strings"

	"github.com/prepdeck/prepdeck/internal/backend"
	"github.com/prepdeck/prepdeck/internal/difficulty"
)

// ParentInfo is the normalized difficulty context of the parent session.
type ParentInfo struct {
	Initial     difficulty.Level `json:"initial_difficulty"`
	Final       difficulty.Level `json:"final_difficulty"`
	WasAdjusted bool             `json:"was_adjusted"`
}

// Result is the structured outcome of an inheritance validation. Warnings
// never affect validity; only errors do.
type Result struct {
	IsValid    bool             `json:"is_valid"`
	Errors     []string         `json:"errors"`
	Warnings   []string         `json:"warnings"`
	ParentInfo ParentInfo       `json:"parent_difficulty_info"`
	Inherited  difficulty.Level `json:"inherited_difficulty"`
}

// Validate checks a practice-creation response for correct difficulty
// inheritance. It is pure: no I/O, no retained state.
//
// Rules:
//  1. Missing parent info or inherited difficulty is an error and
//     short-circuits all other checks.
//  2. When the parent was adjusted, inheriting its initial difficulty is the
//     classic bug (error); anything other than its final difficulty is also
//     an error.
//  3. When the parent was never adjusted, a child that differs from the
//     parent's initial difficulty is unexpected but tolerated (warning).
//  4. A non-canonical wire representation of the inherited difficulty is a
//     warning about representation inconsistency, never an error.
func Validate(resp *backend.PracticeCreationResponse) Result {
	result := Result{
		IsValid:  true,
		Errors:   []string{},
		Warnings: []string{},
	}

	if resp == nil || resp.ParentSessionInfo == nil {
		result.IsValid = false
		result.Errors = append(result.Errors, "missing parent_session_info in creation response")
		return result
	}
	if resp.InheritedSettings == nil || resp.InheritedSettings.DifficultyLevel == nil {
		result.IsValid = false
		result.Errors = append(result.Errors, "missing inherited_settings.difficulty_level in creation response")
		return result
	}

	parent := resp.ParentSessionInfo
	rawInherited := resp.InheritedSettings.DifficultyLevel

	info := ParentInfo{
		Initial:     difficulty.Normalize(parent.InitialDifficulty),
		Final:       difficulty.Normalize(parent.FinalDifficulty),
		WasAdjusted: parent.WasAdjusted,
	}
	inherited := difficulty.Normalize(rawInherited)

	result.ParentInfo = info
	result.Inherited = inherited

	if info.WasAdjusted {
		if inherited == info.Initial && info.Initial != info.Final {
			result.Errors = append(result.Errors, fmt.Sprintf(
				"parent initial difficulty (%s) used instead of final difficulty (%s)",
				info.Initial, info.Final))
		}
		if inherited != info.Final {
			result.Errors = append(result.Errors, fmt.Sprintf(
				"inherited difficulty (%s) does not match parent final difficulty (%s)",
				inherited, info.Final))
		}
	} else if inherited != info.Initial {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"parent was never adjusted but inherited difficulty (%s) differs from parent initial (%s)",
			inherited, info.Initial))
	}

	if warn, ok := representationWarning(rawInherited, inherited); ok {
		result.Warnings = append(result.Warnings, warn)
	}

	result.IsValid = len(result.Errors) == 0
	return result
}

// representationWarning flags inherited difficulty values that normalize
// fine but are not the canonical wire representation.
func representationWarning(raw any, level difficulty.Level) (string, bool) {
	switch v := raw.(type) {
	case string:
		if strings.TrimSpace(v) != level.String() {
			return fmt.Sprintf(
				"inherited difficulty %q is not the canonical representation %q", v, level.String()), true
		}
	case float64:
		if float64(int(v)) != v || int(v) != int(level) {
			return fmt.Sprintf(
				"inherited difficulty ordinal %v is not the canonical ordinal %d", v, int(level)), true
		}
	}
	return "", false
}
