package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DanielTromp/atlas/internal/core/domain"
)

func TestSettingsCmd_Subcommands(t *testing.T) {
	names := make([]string, 0, len(settingsCmd.Commands()))
	for _, c := range settingsCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"show", "get", "set", "keys"}, names)
}

func TestSettingsCmd_ShowGroupsBySection(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.settings.settings.Confluence.BaseURL = "https://wiki.example.com/wiki"

	out, err := runCommand("settings")

	require.NoError(t, err)
	assert.Contains(t, out, "[confluence]")
	assert.Contains(t, out, "  confluence.base_url = https://wiki.example.com/wiki")
	assert.Contains(t, out, "  confluence.token = ****abcd")
	assert.Contains(t, out, "[search]")
	assert.Contains(t, out, "[server]")
	assert.Contains(t, out, "No embedding provider configured")
	assert.NotContains(t, out, "Confluence is not configured")
}

func TestSettingsCmd_ShowWarnsWhenUnconfigured(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := runCommand("settings", "show")

	require.NoError(t, err)
	assert.Contains(t, out, "Confluence is not configured")
}

func TestSettingsCmd_Get(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := runCommand("settings", "get", "search.top_k")
	require.NoError(t, err)
	assert.Equal(t, "10\n", out)

	_, err = runCommand("settings", "get", "search.nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown setting")
}

func TestSettingsCmd_Set(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	out, err := runCommand("settings", "set", "search.top_k", "5")

	require.NoError(t, err)
	assert.Equal(t, "5", ts.settings.values["search.top_k"])
	assert.Contains(t, out, "search.top_k = 5")
}

func TestSettingsCmd_SetRejected(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.settings.setErr = domain.ErrInvalidInput

	_, err := runCommand("settings", "set", "search.top_k", "many")

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "failed to set search.top_k")
}

func TestSettingsCmd_SetNeedsTwoArgs(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	_, err := runCommand("settings", "set", "search.top_k")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 2 arg(s)")
}

func TestSettingsCmd_Keys(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := runCommand("settings", "keys")

	require.NoError(t, err)
	assert.Equal(t, "confluence.base_url\nconfluence.token\nsearch.top_k\nserver.addr\n", out)
}

func TestSettingsCmd_NoService(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	settingsService = nil

	_, err := runCommand("settings")

	assert.ErrorIs(t, err, errSettingsUnavailable)
}
