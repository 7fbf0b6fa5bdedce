package credentials

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureCreatesFileAndParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".terraform.d", "credentials.tfrc.json")

	require.NoError(t, Ensure(path, "acme.scalr.io", "secret"))

	token, err := Token(path, "acme.scalr.io")
	require.NoError(t, err)
	assert.Equal(t, "secret", token)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestEnsureNeverOverwritesExistingEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.tfrc.json")

	require.NoError(t, Ensure(path, "acme.scalr.io", "original"))
	require.NoError(t, Ensure(path, "acme.scalr.io", "replacement"))

	token, err := Token(path, "acme.scalr.io")
	require.NoError(t, err)
	assert.Equal(t, "original", token)
}

func TestEnsurePreservesOtherHosts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.tfrc.json")

	require.NoError(t, Ensure(path, "app.terraform.io", "tfc-token"))
	require.NoError(t, Ensure(path, "acme.scalr.io", "scalr-token"))

	tfc, err := Token(path, "app.terraform.io")
	require.NoError(t, err)
	assert.Equal(t, "tfc-token", tfc)

	scalr, err := Token(path, "acme.scalr.io")
	require.NoError(t, err)
	assert.Equal(t, "scalr-token", scalr)
}

func TestEnsureRecoversFromCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.tfrc.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	require.NoError(t, Ensure(path, "acme.scalr.io", "secret"))

	token, err := Token(path, "acme.scalr.io")
	require.NoError(t, err)
	assert.Equal(t, "secret", token)
}

func TestTokenForUnknownHost(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.tfrc.json")

	_, err := Token(path, "missing.example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "terraform login")
}
