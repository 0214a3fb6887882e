package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/atomicfs/internal/jbs"
)

func TestDefaultsAreValidOnceStorePathSet(t *testing.T) {
	cfg := Defaults()
	cfg.StorePath = "/tmp/store.img"
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsMissingStorePath(t *testing.T) {
	cfg := Defaults()
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownNameComparer(t *testing.T) {
	cfg := Defaults()
	cfg.StorePath = "/tmp/store.img"
	cfg.NameComparer = "weird"
	assert.Error(t, cfg.Validate())
}

func TestConsistencyLevelParsesAllVariants(t *testing.T) {
	cases := map[string]jbs.Consistency{
		"noflush":       jbs.NoFlush,
		"flush":         jbs.Flush,
		"journal":       jbs.Journal,
		"verifyjournal": jbs.VerifyJournal,
	}
	for s, want := range cases {
		cfg := Config{Consistency: s}
		got, err := cfg.ConsistencyLevel()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestLoadWithoutConfigFileRequiresStorePath(t *testing.T) {
	cfg, err := Load("")
	// store_path default is empty, so Validate fails; Load must surface it.
	assert.Error(t, err)
	_ = cfg
}
