package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaughanknight/trex-sub003/internal/infrastructure/server"
)

func TestLoadConfigFlagOverrides(t *testing.T) {
	t.Setenv("TREX_CONFIG", "")
	t.Setenv("PORT", "9000")

	cfg, err := loadConfig(&flags{port: "9100", host: "0.0.0.0", shell: "/bin/zsh", dev: true, noTmux: true})
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9100", cfg.Server.Addr())
	assert.Equal(t, "/bin/zsh", cfg.Terminal.Shell)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.Tmux.Enabled)
}

func TestLoadConfigEnvWithoutFlags(t *testing.T) {
	t.Setenv("TREX_CONFIG", "")
	t.Setenv("PORT", "9000")

	cfg, err := loadConfig(&flags{})
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Server.Port)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, server.Version+"\n", out.String())
}

func TestSubcommandsInheritFlags(t *testing.T) {
	cmd := rootCmd()
	serve, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	require.NoError(t, serve.ParseFlags([]string{"--port", "7000", "--no-tmux"}))

	port, err := serve.Flags().GetString("port")
	require.NoError(t, err)
	assert.Equal(t, "7000", port)
}
