package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	root := GetRootCmd()
	assert.Equal(t, "lore", root.Use)
	assert.Equal(t, version, root.Version)
}

func TestSubcommandsRegistered(t *testing.T) {
	root := GetRootCmd()

	want := []string{"serve", "sync", "search", "add", "list", "status"}
	registered := make(map[string]bool)
	for _, c := range root.Commands() {
		registered[c.Name()] = true
	}
	for _, name := range want {
		assert.True(t, registered[name], "command %q not registered", name)
	}
}

func TestPersistentFlags(t *testing.T) {
	root := GetRootCmd()
	require.NotNil(t, root.PersistentFlags().Lookup("config"))
	require.NotNil(t, root.PersistentFlags().Lookup("log-level"))
}

func TestSearchFlags(t *testing.T) {
	require.NotNil(t, searchCmd.Flags().Lookup("mode"))
	assert.Equal(t, "hybrid", searchCmd.Flags().Lookup("mode").DefValue)
	require.NotNil(t, searchCmd.Flags().Lookup("limit"))
}
