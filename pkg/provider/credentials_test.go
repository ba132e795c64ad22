package provider_test

import (
	"testing"

	"github.com/devagent-ai/devagent/pkg/models"
	"github.com/devagent-ai/devagent/pkg/provider"
	"github.com/stretchr/testify/assert"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestResolveCredentials(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		env  map[string]string
		want provider.Credentials
	}{
		{"none", nil, provider.Credentials{}},
		{
			"specific keys",
			map[string]string{"GROQ_API_KEY": "g", "OPENROUTER_API_KEY": "o", "HUGGINGFACE_API_KEY": "h"},
			provider.Credentials{Groq: "g", OpenRouter: "o", HuggingFace: "h"},
		},
		{"shared groq key", map[string]string{"AI_API_KEY": "gsk_abc"}, provider.Credentials{Groq: "gsk_abc"}},
		{"shared hf key", map[string]string{"AI_API_KEY": "hf_abc"}, provider.Credentials{HuggingFace: "hf_abc"}},
		{"shared other key", map[string]string{"AI_API_KEY": "sk-or-abc"}, provider.Credentials{OpenRouter: "sk-or-abc"}},
		{
			"specific key wins over shared",
			map[string]string{"AI_API_KEY": "gsk_shared", "GROQ_API_KEY": "gsk_own"},
			provider.Credentials{Groq: "gsk_own"},
		},
		{
			"shared key claimed by one vendor only",
			map[string]string{"AI_API_KEY": "hf_x", "OPENROUTER_API_KEY": "o"},
			provider.Credentials{OpenRouter: "o", HuggingFace: "hf_x"},
		},
		{"whitespace is absent", map[string]string{"GROQ_API_KEY": "  "}, provider.Credentials{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, provider.ResolveCredentials(envOf(tt.env)))
		})
	}
}

func TestCredentialsFor(t *testing.T) {
	t.Parallel()
	c := provider.Credentials{Groq: "g", OpenRouter: "o", HuggingFace: "h"}
	assert.Equal(t, "g", c.For(models.ProviderGroq))
	assert.Equal(t, "o", c.For(models.ProviderOpenRouter))
	assert.Equal(t, "h", c.For(models.ProviderHuggingFace))
	assert.Empty(t, c.For("acme"))
	assert.Equal(t, "GROQ_API_KEY", provider.EnvVar(models.ProviderGroq))
}

func TestSetFor(t *testing.T) {
	t.Parallel()
	s := provider.NewSet(provider.Credentials{Groq: "g"}, provider.Options{})
	assert.Equal(t, models.ProviderGroq, s.For(models.ProviderGroq).Name())
	assert.True(t, s.For(models.ProviderGroq).Available())
	assert.False(t, s.For(models.ProviderOpenRouter).Available())
	assert.False(t, s.For(models.ProviderHuggingFace).Available())
	assert.Nil(t, s.For("acme"))
	assert.Nil(t, provider.Set{}.For(models.ProviderGroq))
}
