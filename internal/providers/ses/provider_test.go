package ses

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattiq/runnotify/internal/core"
)

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name     string
		settings core.ProviderSettings
		field    string
	}{
		{name: "region only", settings: core.ProviderSettings{"region": "eu-west-1"}},
		{name: "static credentials", settings: core.ProviderSettings{"region": "eu-west-1", "access_key": "AKIA", "secret_key": "s"}},
		{name: "missing region", settings: core.ProviderSettings{}, field: "region"},
		{name: "access key without secret", settings: core.ProviderSettings{"region": "eu-west-1", "access_key": "AKIA"}, field: "secret_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&Provider{config: tt.settings}).ValidateConfig()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var ve *core.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestNewProviderWithStaticCredentials(t *testing.T) {
	p, err := NewProvider(core.ProviderSettings{
		"region":        "eu-west-1",
		"access_key":    "AKIAEXAMPLE",
		"secret_key":    "secret",
		"session_token": "token",
	})
	require.NoError(t, err)
	assert.Equal(t, "aws_ses", p.Name())
	assert.NotNil(t, p.(*Provider).client)
}

func TestConvertAddresses(t *testing.T) {
	p := &Provider{}
	got := p.convertAddresses([]core.Address{
		{Email: "ops@example.com"},
		{Name: "Ops Team", Email: "team@example.com"},
	})
	assert.Equal(t, []string{"ops@example.com", "Ops Team <team@example.com>"}, got)
}
