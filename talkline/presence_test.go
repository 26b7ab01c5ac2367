package talkline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPresenceSetDropsSelf(t *testing.T) {
	s := NewPresenceSet([]string{"u1", "u2", "u3"}, "u1")
	assert.False(t, s.Contains("u1"), "self must be excluded even when the snapshot includes it")
	assert.True(t, s.Contains("u2"))
	assert.True(t, s.Contains("u3"))
}

func TestProjectRosterOrderAndFlags(t *testing.T) {
	directory := []DirectoryEntry{
		{ID: "u3", Name: "Bob"},
		{ID: "u1", Name: "Me"},
		{ID: "u2", Name: "Ann"},
	}
	presence := NewPresenceSet([]string{"u2"}, "u1")

	roster := ProjectRoster(directory, presence, "u1")
	require.Len(t, roster, 2)
	assert.Equal(t, "u3", roster[0].ID)
	assert.False(t, roster[0].Active)
	assert.Equal(t, "u2", roster[1].ID)
	assert.True(t, roster[1].Active)
}

func TestProjectRosterEmptyDirectory(t *testing.T) {
	roster := ProjectRoster(nil, PresenceSet{}, "u1")
	assert.Empty(t, roster)
}
