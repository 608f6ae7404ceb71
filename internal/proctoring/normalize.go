package proctoring

import (
	"strings"
	"unicode"

	"peerprep/interview/internal/models"
)

var violationAliases = map[string]models.ViolationType{
	"camera_off":        models.ViolationCameraOff,
	"cameraoff":         models.ViolationCameraOff,
	"camera_disabled":   models.ViolationCameraOff,
	"no_camera":         models.ViolationCameraOff,
	"camera_covered":    models.ViolationCameraCovered,
	"cameracovered":     models.ViolationCameraCovered,
	"camera_blocked":    models.ViolationCameraCovered,
	"face_mismatch":     models.ViolationFaceMismatch,
	"facemismatch":      models.ViolationFaceMismatch,
	"identity_mismatch": models.ViolationFaceMismatch,
	"impersonation":     models.ViolationFaceMismatch,
	"multiple_faces":    models.ViolationMultipleFaces,
	"multiplefaces":     models.ViolationMultipleFaces,
	"multiple_face":     models.ViolationMultipleFaces,
	"multi_face":        models.ViolationMultipleFaces,
	"phone_detected":    models.ViolationPhoneDetected,
	"phone":             models.ViolationPhoneDetected,
	"mobile_phone":      models.ViolationPhoneDetected,
	"no_face":           models.ViolationNoFace,
	"no_face_detected":  models.ViolationNoFace,
	"face_not_detected": models.ViolationNoFace,
}

var actionAliases = map[string]models.ActionTaken{
	"warning":            models.ActionWarning,
	"warn":               models.ActionWarning,
	"first_warning":      models.ActionWarning,
	"final_warning":      models.ActionFinalWarning,
	"finalwarning":       models.ActionFinalWarning,
	"final":              models.ActionFinalWarning,
	"last_warning":       models.ActionFinalWarning,
	"terminated":         models.ActionTerminated,
	"terminate":          models.ActionTerminated,
	"termination":        models.ActionTerminated,
	"session_terminated": models.ActionTerminated,
}

// canonicalKey lower-cases s and folds runs of spaces, dashes and underscores into one underscore.
func canonicalKey(s string) string {
	var b strings.Builder
	sep := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if r == '-' || r == '_' || unicode.IsSpace(r) {
			sep = true
			continue
		}
		if sep && b.Len() > 0 {
			b.WriteByte('_')
		}
		sep = false
		b.WriteRune(r)
	}
	return b.String()
}

// ParseViolationType maps a client-supplied label onto a known violation type.
func ParseViolationType(raw string) (models.ViolationType, error) {
	if strings.TrimSpace(raw) == "" {
		return "", models.NewValidationError("violationType", "violationType is required")
	}
	key := canonicalKey(raw)
	if t, ok := violationAliases[key]; ok {
		return t, nil
	}
	t, n := containedAlias(key, violationAliases)
	switch {
	case n == 1:
		return t, nil
	case n > 1:
		return "", models.NewValidationError("violationType", "ambiguous violation type "+quote(raw))
	}
	return "", models.NewValidationError("violationType", "unrecognized violation type "+quote(raw))
}

// ParseAction maps a client-supplied label onto a known enforcement action.
func ParseAction(raw string) (models.ActionTaken, error) {
	if strings.TrimSpace(raw) == "" {
		return "", models.NewValidationError("actionTaken", "actionTaken is required")
	}
	key := canonicalKey(raw)
	if a, ok := actionAliases[key]; ok {
		return a, nil
	}
	a, n := containedAlias(key, actionAliases)
	switch {
	case n == 1:
		return a, nil
	case n > 1:
		return "", models.NewValidationError("actionTaken", "ambiguous action "+quote(raw))
	}
	return "", models.NewValidationError("actionTaken", "unrecognized action "+quote(raw))
}

// containedAlias finds aliases that appear as whole words inside key, e.g.
// "final_warning_issued". An alias nested inside a longer hit is ignored.
// n is the number of distinct values matched; the result is only usable when n == 1.
func containedAlias[T comparable](key string, aliases map[string]T) (match T, n int) {
	if key == "" {
		return match, 0
	}
	var hits []string
	for alias := range aliases {
		if containsWord(key, alias) {
			hits = append(hits, alias)
		}
	}

	seen := map[T]bool{}
	for _, alias := range hits {
		if nestedIn(alias, hits) {
			continue
		}
		v := aliases[alias]
		if !seen[v] {
			seen[v] = true
			match = v
		}
	}
	return match, len(seen)
}

func containsWord(key, alias string) bool {
	return strings.Contains("_"+key+"_", "_"+alias+"_")
}

func nestedIn(alias string, hits []string) bool {
	for _, other := range hits {
		if other != alias && containsWord(other, alias) {
			return true
		}
	}
	return false
}

func quote(s string) string {
	if len(s) > 64 {
		s = s[:64] + "..."
	}
	return `"` + s + `"`
}
