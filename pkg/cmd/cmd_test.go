package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) string {
	t.Helper()

	var out bytes.Buffer

	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append([]string{"--config", t.TempDir()}, args...))
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())

	return out.String()
}

func TestKeygen(t *testing.T) {
	a := strings.TrimSpace(run(t, "keygen"))
	b := strings.TrimSpace(run(t, "keygen"))

	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestBackends(t *testing.T) {
	out := run(t, "backends")

	assert.Contains(t, out, "* sqlite")
	assert.Contains(t, out, "* memory")
	assert.Contains(t, out, "* gochannel")
	assert.Contains(t, out, "  redis")
	assert.Contains(t, out, "* fs")
}

func TestConfigDebug(t *testing.T) {
	t.Setenv("DOCVAULT_DB_PASSWORD", "hunter2")

	out := run(t, "config", "debug")
	assert.Contains(t, out, `"Storage"`)
	assert.Contains(t, out, `"******"`)
	assert.NotContains(t, out, "hunter2")
}

func TestConfigPathWithoutFile(t *testing.T) {
	out := run(t, "config", "path")
	assert.Contains(t, out, "DOCVAULT_")
}
