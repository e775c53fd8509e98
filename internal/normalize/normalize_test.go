package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRolesFromSlice(t *testing.T) {
	assert.Equal(t, []string{"admin", "teacher"}, Roles([]string{"Admin", "Teacher", "admin"}, ""))
}

func TestRolesFromJSONString(t *testing.T) {
	assert.Equal(t, []string{"student", "registrar"}, Roles(`["Student", "Registrar"]`, ""))
}

func TestRolesFromCommaString(t *testing.T) {
	assert.Equal(t, []string{"teacher", "admin"}, Roles("Teacher, Admin, teacher", ""))
}

func TestRolesLegacyAlias(t *testing.T) {
	// "faculty" collapses into "teacher", including when both appear.
	assert.Equal(t, []string{"teacher"}, Roles("Faculty,teacher", ""))
}

func TestRolesEmptyFallsBack(t *testing.T) {
	assert.Equal(t, []string{"student"}, Roles("", ""))
	assert.Equal(t, []string{"admin"}, Roles(nil, "Admin"))
	assert.Equal(t, []string{"student"}, Roles([]string{" ", ""}, ""))
}

func TestRolesMalformedJSONDegradesToCommaSplit(t *testing.T) {
	assert.Equal(t, []string{"[admin", "teacher]"}, Roles("[admin, teacher]", ""))
}

func TestRolesIdempotent(t *testing.T) {
	inputs := []interface{}{
		[]string{"Admin", "FACULTY", "admin"},
		`["Student"]`,
		"teacher,  ,Teacher",
		"",
	}
	for _, in := range inputs {
		once := Roles(in, "")
		twice := Roles(once, "")
		assert.Equal(t, once, twice)
	}
}

func TestStatusBuckets(t *testing.T) {
	cases := map[string]StatusBucket{
		"active":    BucketActive,
		" Enrolled": BucketActive,
		"CURRENT":   BucketActive,
		"":          BucketUnset,
		"   ":       BucketUnset,
		"dropped":   BucketInactive,
		"Cancelled": BucketInactive,
		"archived":  BucketInactive,
		"pending":   BucketOther,
		"Irregular": BucketOther,
	}
	for raw, want := range cases {
		assert.Equal(t, want, Status(raw), "status %q", raw)
	}
}

func TestStatusPriorityOrdering(t *testing.T) {
	assert.Equal(t, 0, BucketActive.Priority())
	assert.Equal(t, 1, BucketUnset.Priority())
	assert.Equal(t, 5, BucketOther.Priority())
	assert.Equal(t, 50, BucketInactive.Priority())
}

func TestIsIrregular(t *testing.T) {
	assert.True(t, IsIrregular("Irregular"))
	assert.True(t, IsIrregular("  irregular "))
	assert.False(t, IsIrregular("regular"))
	assert.False(t, IsIrregular(""))
}
