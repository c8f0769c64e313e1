package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootRegistersCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "run", "create-session", "add-account", "add-target-app"} {
		assert.True(t, names[want], want)
	}
}

func TestRunAgent_RejectsMainPhaseAsSide(t *testing.T) {
	err := runAgent(context.Background(), runOptions{sessionID: "s1", side: "reels"})
	assert.ErrorContains(t, err, "--side must be")

	err = runAgent(context.Background(), runOptions{sessionID: "s1", side: "bogus"})
	assert.ErrorContains(t, err, "unknown phase")
}

func TestPrintJSON(t *testing.T) {
	var out bytes.Buffer
	c := newCreateSessionCmd()
	c.SetOut(&out)

	require.NoError(t, printJSON(c, map[string]int{"n": 1}))
	assert.JSONEq(t, `{"n":1}`, out.String())
}
