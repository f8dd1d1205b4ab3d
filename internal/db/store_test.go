package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabletop-agent/internal/models"
)

func TestGetSummary_AbsentIsEmpty(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	summary, err := database.GetSummary(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, "", summary)
}

func TestSetSummary_Overwrites(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, database.SetSummary(ctx, "room-1", "the party met"))
	require.NoError(t, database.SetSummary(ctx, "room-1", "the party fought a dragon"))
	require.NoError(t, database.SetSummary(ctx, "room-2", "elsewhere"))

	summary, err := database.GetSummary(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, "the party fought a dragon", summary)
}

func TestUpsertProfile_InsertThenOverwrite(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, database.UpsertProfile(ctx, "room-1", "u1", "Aria", "HP 10"))
	require.NoError(t, database.UpsertProfile(ctx, "room-1", "u1", "Aria", "HP 4"))
	require.NoError(t, database.UpsertProfile(ctx, "room-1", "u2", "Bram", "HP 12"))

	profiles, err := database.ListProfiles(ctx, "room-1")
	require.NoError(t, err)
	require.Len(t, profiles, 2)

	byName := map[string]models.CharacterProfile{}
	for _, p := range profiles {
		byName[p.Name] = p
	}
	assert.Equal(t, "HP 4", byName["Aria"].Data)
	assert.Equal(t, "u2", byName["Bram"].OwnerID)
}

func TestUpsertProfile_NameIsCaseSensitive(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, database.UpsertProfile(ctx, "room-1", "u1", "Aria", "a"))
	require.NoError(t, database.UpsertProfile(ctx, "room-1", "u1", "aria", "b"))

	profiles, err := database.ListProfiles(ctx, "room-1")
	require.NoError(t, err)
	assert.Len(t, profiles, 2)
}

func TestRoomRole_AbsentThenSet(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	role, err := database.GetRoomRole(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, models.ChannelRole(""), role)

	require.NoError(t, database.SetRoomRole(ctx, "room-1", models.ChannelRoleAssistant))
	require.NoError(t, database.SetRoomRole(ctx, "room-1", models.ChannelRoleGM))

	role, err = database.GetRoomRole(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, models.ChannelRoleGM, role)
}
