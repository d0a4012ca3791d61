package config_test

import (
	"testing"

	"github.com/loomwork/loom/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildLLMClientEmptyProviderIsNil(t *testing.T) {
	client, err := config.BuildLLMClient(config.LLMConfig{})
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestBuildLLMClientUnknownProviderErrors(t *testing.T) {
	_, err := config.BuildLLMClient(config.LLMConfig{Provider: "bogus"})
	assert.Error(t, err)
}

func TestBuildLLMClientAnthropic(t *testing.T) {
	client, err := config.BuildLLMClient(config.LLMConfig{Provider: "anthropic", APIKey: "test-key"})
	require.NoError(t, err)
	assert.NotNil(t, client)
}
