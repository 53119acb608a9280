package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/DistributedCollective/Sovryn-Node-sub000/config"
)

func TestLogSettings_FlagsOverrideCopy(t *testing.T) {
	base := config.LogConfig{Level: "info", Format: "text"}

	got := logSettings(base, true, "json")
	assert.Equal(t, config.LogConfig{Level: "debug", Format: "json"}, got)
	assert.Equal(t, config.LogConfig{Level: "info", Format: "text"}, base)

	assert.Equal(t, base, logSettings(base, false, ""))
}
