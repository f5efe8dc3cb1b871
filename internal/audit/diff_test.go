package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Status   string  `json:"status"`
	Priority *string `json:"priority"`
	Notes    string  `json:"admin_notes,omitempty"`
	Count    int     `json:"count"`
}

func TestDiff(t *testing.T) {
	high := "high"

	t.Run("only changed keys are reported", func(t *testing.T) {
		before := record{Status: "pending", Count: 1}
		after := record{Status: "validated", Count: 1}

		changes, err := Diff(before, after)
		require.NoError(t, err)
		assert.Equal(t, map[string]Change{"status": {Old: "pending", New: "validated"}}, changes)
	})

	t.Run("null to value is a change", func(t *testing.T) {
		changes, err := Diff(record{}, record{Priority: &high})
		require.NoError(t, err)
		assert.Equal(t, Change{Old: nil, New: "high"}, changes["priority"])
	})

	t.Run("key added or removed is a change", func(t *testing.T) {
		changes, err := Diff(record{Notes: "call back"}, record{})
		require.NoError(t, err)
		assert.Equal(t, Change{Old: "call back", New: nil}, changes["admin_notes"])

		changes, err = Diff(record{}, record{Notes: "call back"})
		require.NoError(t, err)
		assert.Equal(t, Change{Old: nil, New: "call back"}, changes["admin_notes"])
	})

	t.Run("identical values produce an empty diff", func(t *testing.T) {
		changes, err := Diff(record{Status: "pending"}, record{Status: "pending"})
		require.NoError(t, err)
		assert.Empty(t, changes)
	})

	t.Run("changed fields are sorted", func(t *testing.T) {
		changes, err := Diff(record{Status: "a", Count: 1}, record{Status: "b", Count: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"count", "status"}, ChangedFields(changes))
	})
}

func TestActionValid(t *testing.T) {
	assert.True(t, ActionVerify2FAFailed.Valid())
	assert.False(t, Action("PATCH").Valid())
}
