package tmux

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripEnv(t *testing.T) {
	env := []string{
		"HOME=/home/dev",
		"TMUX=/tmp/tmux-1000/default,1234,0",
		"TMUX_PANE=%3",
		"TMUX_TMPDIR=/run/tmux",
		"PATH=/usr/bin",
		"tmux_lower=kept",
		"MY_TMUX=kept",
		"EDITOR=TMUX",
		"EMPTY=",
	}

	got := StripEnv(env, DefaultEnvPrefix)
	assert.Equal(t, []string{
		"HOME=/home/dev",
		"PATH=/usr/bin",
		"tmux_lower=kept",
		"MY_TMUX=kept",
		"EDITOR=TMUX",
		"EMPTY=",
	}, got)
}

func TestStripEnvRemovesEveryMatch(t *testing.T) {
	env := []string{"TMUXA=1", "TMUX=2", "TMUX_B=3", "OTHER=4"}
	got := StripEnv(env, "TMUX")

	for _, kv := range got {
		assert.NotRegexp(t, `^TMUX`, kv)
	}
	assert.Equal(t, []string{"OTHER=4"}, got)
	assert.Len(t, env, 4, "input must not be modified")
}

func TestStripEnvEmpty(t *testing.T) {
	assert.Empty(t, StripEnv(nil, "TMUX"))
}
