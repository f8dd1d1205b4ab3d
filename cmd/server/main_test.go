package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabletop-agent/internal/db"
	"tabletop-agent/internal/models"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "data", "app.db")
	t.Setenv("SETTINGS_DIR", dir)
	t.Setenv("DB_PATH", dbPath)
	t.Setenv("OPENAI_API_KEY", "")
	return dbPath
}

func TestMigrateCommand(t *testing.T) {
	dbPath := setupEnv(t)

	out, err := runCmd(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Migrated")
	assert.FileExists(t, dbPath)
}

func TestSetRoleCommand(t *testing.T) {
	dbPath := setupEnv(t)

	out, err := runCmd(t, "setrole", "room-9", "GM")
	require.NoError(t, err)
	assert.Contains(t, out, "Role set to gm")

	database, err := db.NewDB(dbPath, nil)
	require.NoError(t, err)
	defer database.Close()

	role, err := database.GetRoomRole(context.Background(), "room-9")
	require.NoError(t, err)
	assert.Equal(t, models.ChannelRoleGM, role)
}

func TestSetRoleCommand_RejectsUnknownRole(t *testing.T) {
	setupEnv(t)

	_, err := runCmd(t, "setrole", "room-9", "bard")
	assert.ErrorContains(t, err, "unknown role")

	_, err = runCmd(t, "setrole", "room-9")
	assert.Error(t, err)
}

func TestServeCommand_RequiresValidConfig(t *testing.T) {
	setupEnv(t)
	t.Setenv("AGENT_ID", "")

	_, err := runCmd(t, "serve")
	assert.ErrorContains(t, err, "invalid configuration")
}
