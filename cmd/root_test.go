package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubcommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"migrate", "batch", "deal", "reviews", "serve"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestBatchFlags(t *testing.T) {
	for _, name := range []string{"limit", "min-created-at", "no-maintenance", "since-last"} {
		require.NotNil(t, batchCmd.Flags().Lookup(name), "missing flag --%s", name)
	}
}
