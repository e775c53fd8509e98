// Package normalize canonicalises the loosely typed role and status fields
// the legacy records tables carry. Every function is total: any input maps
// to a well-defined output and nothing here touches the store.
package normalize

import (
	"encoding/json"
	"strings"
)

// DefaultRole is assumed when a user row carries no usable role at all.
const DefaultRole = "student"

// roleAliases maps legacy role spellings onto their canonical names.
var roleAliases = map[string]string{
	"faculty": "teacher",
}

// Roles canonicalises a raw role value into a non-empty, deduplicated,
// lower-cased list preserving first-seen order. Accepted shapes: []string,
// []interface{}, a JSON array string, a comma-separated string, or nothing.
// The first element of the result is the primary role.
func Roles(raw interface{}, fallback string) []string {
	var parts []string
	switch v := raw.(type) {
	case nil:
	case []string:
		parts = v
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
	case string:
		parts = splitRoleString(v)
	}

	seen := make(map[string]struct{}, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		role := strings.ToLower(strings.TrimSpace(p))
		if role == "" {
			continue
		}
		if canonical, ok := roleAliases[role]; ok {
			role = canonical
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}

	if len(out) == 0 {
		fb := strings.ToLower(strings.TrimSpace(fallback))
		if fb == "" {
			fb = DefaultRole
		}
		return []string{fb}
	}
	return out
}

func splitRoleString(v string) []string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var arr []string
		if err := json.Unmarshal([]byte(trimmed), &arr); err == nil {
			return arr
		}
		// Malformed JSON degrades to comma splitting so no input is lost.
	}
	return strings.Split(trimmed, ",")
}

// StatusBucket classifies an assignment status string for ranking.
type StatusBucket int

const (
	BucketActive StatusBucket = iota
	BucketUnset
	BucketOther
	BucketInactive
)

var activeStatuses = map[string]struct{}{
	"active":   {},
	"current":  {},
	"enrolled": {},
}

var inactiveStatuses = map[string]struct{}{
	"inactive":  {},
	"dropped":   {},
	"archived":  {},
	"deleted":   {},
	"removed":   {},
	"cancelled": {},
}

// Status classifies a free-text assignment status into its bucket.
func Status(raw string) StatusBucket {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return BucketUnset
	}
	if _, ok := activeStatuses[s]; ok {
		return BucketActive
	}
	if _, ok := inactiveStatuses[s]; ok {
		return BucketInactive
	}
	return BucketOther
}

// Priority returns the rank used to break ties among assignment rows.
// Lower is better.
func (b StatusBucket) Priority() int {
	switch b {
	case BucketActive:
		return 0
	case BucketUnset:
		return 1
	case BucketOther:
		return 5
	default:
		return 50
	}
}

// IsIrregular reports whether a status marks the student as irregular, which
// gates student-specific study load entries.
func IsIrregular(raw string) bool {
	return strings.EqualFold(strings.TrimSpace(raw), "irregular")
}
