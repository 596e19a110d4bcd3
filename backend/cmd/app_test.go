package main

import (
	"testing"

	"github.com/adwski/webrtc-rooms/backend/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := parseConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.apiAddr)
	assert.Equal(t, ":8888", cfg.wsAddr)
	assert.Equal(t, zerolog.DebugLevel, cfg.logLevel)
	assert.Equal(t, []model.ICEServer{{URLs: []string{defaultSTUN}}}, cfg.iceServers())
}

func TestParseConfig_TURN(t *testing.T) {
	cfg, err := parseConfig([]string{
		"-a", ":9000",
		"--log-level", "warn",
		"--stun-urls", "stun:a:3478,stun:b:3478",
		"--turn-urls", "turn:t:3478",
		"--turn-username", "u",
		"--turn-password", "p",
	})
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.apiAddr)
	assert.Equal(t, zerolog.WarnLevel, cfg.logLevel)
	assert.Equal(t, []model.ICEServer{
		{URLs: []string{"stun:a:3478", "stun:b:3478"}},
		{URLs: []string{"turn:t:3478"}, Username: "u", Credential: "p"},
	}, cfg.iceServers())
}

func TestParseConfig_Errors(t *testing.T) {
	_, err := parseConfig([]string{"--log-level", "loud"})
	assert.Error(t, err)

	_, err = parseConfig([]string{"--no-such-flag"})
	assert.Error(t, err)
}
