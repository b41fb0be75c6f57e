package s3

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func TestProfilesFromFilesMergesBothSources(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	credentials := filepath.Join(dir, "credentials")
	config := filepath.Join(dir, "config")

	writeFile(t, credentials, `[default]
aws_access_key_id = AKIA
[field-station]
aws_access_key_id = AKIB
`)
	writeFile(t, config, `[profile lab]
region = us-west-2
[profile field-station]
region = us-east-1
`)

	profiles, err := profilesFromFiles(credentials, config)
	require.NoError(t, err)
	assert.Equal(t, []string{"default", "field-station", "lab"}, profiles)
}

func TestProfilesFromFilesMissingFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	profiles, err := profilesFromFiles(
		filepath.Join(dir, "credentials"),
		filepath.Join(dir, "config"),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"default"}, profiles)
}

func TestProfilesFromFilesMalformedConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	config := filepath.Join(dir, "config")
	writeFile(t, config, "[unclosed\ngarbage")

	_, err := profilesFromFiles(filepath.Join(dir, "credentials"), config)
	assert.Error(t, err)
}
