package logic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabletop-agent/internal/models"
)

func TestParseProfileBlocks_SkipsHeaderlessBlocks(t *testing.T) {
	text := "-- Aria --\nAria\nMedium humanoid, neutral good\nHit Points 12\n\nsome chatter with no header\n\n--  --\nnameless"

	blocks := ParseProfileBlocks(text)

	require.Len(t, blocks, 1)
	assert.Equal(t, "Aria", blocks[0].Name)
	assert.Equal(t, "-- Aria --\nAria\nMedium humanoid, neutral good\nHit Points 12", blocks[0].Data)
}

func TestParseProfileBlocks_ToleratesCRLFAndPaddedBlankLines(t *testing.T) {
	text := "-- Aria --\r\nHP 4\r\n  \r\n-- Bram --\nHP 9"

	blocks := ParseProfileBlocks(text)

	require.Len(t, blocks, 2)
	assert.Equal(t, "Aria", blocks[0].Name)
	assert.Equal(t, "Bram", blocks[1].Name)
}

func TestParseProfileBlocks_Empty(t *testing.T) {
	assert.Empty(t, ParseProfileBlocks(""))
	assert.Empty(t, ParseProfileBlocks("nothing useful here"))
}

func TestMatchProfileUpdates_OnlyExistingNames(t *testing.T) {
	blocks := []ProfileBlock{
		{Name: "Aria", Data: "-- Aria --\nHP 4"},
		{Name: "Stranger", Data: "-- Stranger --\nHP 1"},
		{Name: "bram", Data: "-- bram --\nHP 2"},
	}
	existing := []models.CharacterProfile{
		{RoomID: "room-1", OwnerID: "u1", Name: "Aria", Data: "-- Aria --\nHP 10"},
		{RoomID: "room-1", OwnerID: "u2", Name: "Bram", Data: "-- Bram --\nHP 9"},
	}

	updates := MatchProfileUpdates(blocks, existing)

	require.Len(t, updates, 1)
	assert.Equal(t, models.CharacterProfile{
		RoomID: "room-1", OwnerID: "u1", Name: "Aria", Data: "-- Aria --\nHP 4",
	}, updates[0])
}

func TestMatchProfileUpdates_NoExistingProfiles(t *testing.T) {
	blocks := ParseProfileBlocks("-- Aria --\nstats")
	assert.Empty(t, MatchProfileUpdates(blocks, nil))
}
