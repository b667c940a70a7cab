package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.3", formatVersion("1.2.3"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd()

	assert.True(t, root.SilenceErrors, "main MUST print errors itself")
	assert.NotNil(t, root.PersistentFlags().Lookup("log-level"))

	cmd, _, err := root.Find([]string{"chars"})
	require.NoError(t, err)
	assert.Equal(t, "characteristics", cmd.Name(), "chars MUST alias characteristics")
	for _, name := range []string{"expand", "json", "connect-timeout", "config", "no-retry", "verbose"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "flag --%s MUST exist", name)
	}
}
