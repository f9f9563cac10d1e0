package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"serve", "ingest", "rules", "migrate"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "ingest-worker", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRulesCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rulesCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"list", "resolve", "import"} {
		assert.True(t, names[name], "expected rules subcommand %q not found", name)
	}
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestIngestCommand_Flags(t *testing.T) {
	for _, name := range []string{"source-type", "source-name", "task-id", "persist", "extractions", "output"} {
		assert.NotNil(t, ingestCmd.Flags().Lookup(name), "ingest command should have --%s flag", name)
	}
	assert.Equal(t, "false", ingestCmd.Flags().Lookup("persist").DefValue)
	assert.Equal(t, "o", ingestCmd.Flags().Lookup("output").Shorthand)
}

func TestIngestCommand_RequiresTarget(t *testing.T) {
	require.NotNil(t, ingestCmd.Args)
	assert.Error(t, ingestCmd.Args(ingestCmd, nil))
	assert.NoError(t, ingestCmd.Args(ingestCmd, []string{"vessels.csv"}))
}

func TestRulesResolveCommand_Flags(t *testing.T) {
	for _, name := range []string{"column", "source-type", "source-name"} {
		assert.NotNil(t, rulesResolveCmd.Flags().Lookup(name), "rules resolve should have --%s flag", name)
	}
	assert.NotNil(t, rulesImportCmd.Flags().Lookup("file"))
}
