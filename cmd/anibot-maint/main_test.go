package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestMigrateAndCounts(t *testing.T) {

	path := filepath.Join(t.TempDir(), "anibot.db")

	out, err := execute("migrate", "--db", path)
	require.NoError(t, err, out)
	assert.Contains(t, out, "up to date")

	out, err = execute("counts", "--db", path)
	require.NoError(t, err, out)
	for _, table := range []string{"guilds", "registrations", "anilist_users", "schema_migrations"} {
		assert.Contains(t, out, table)
	}
	assert.Contains(t, out, "guilds               0", "a fresh database has no guilds")
}

func TestExportRejectsBadFlags(t *testing.T) {

	path := filepath.Join(t.TempDir(), "anibot.db")
	for _, args := range [][]string{
		{"export", "--db", path, "--user", "yuki", "--type", "novel"},
		{"export", "--db", path, "--user", "yuki", "--format", "xml"},
		{"export", "--db", path},
	} {
		_, err := execute(args...)
		assert.Error(t, err, "%v should fail", args)
	}
}

func TestExportRequiresUser(t *testing.T) {

	path := filepath.Join(t.TempDir(), "anibot.db")
	out, err := execute("export", "--db", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "user" not set`, out)
}
