package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattiq/runnotify/internal/core"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		kind     string
		settings core.ProviderSettings
		want     string
		field    string
	}{
		{name: "sendgrid", kind: TypeSendGrid, settings: core.ProviderSettings{"api_key": "SG.x"}, want: "sendgrid"},
		{name: "sendgrid without key", kind: TypeSendGrid, settings: core.ProviderSettings{}, field: "api_key"},
		{name: "mailgun", kind: TypeMailgun, settings: core.ProviderSettings{"api_key": "k", "domain": "mg.example.com"}, want: "mailgun"},
		{name: "mailgun without domain", kind: TypeMailgun, settings: core.ProviderSettings{"api_key": "k"}, field: "domain"},
		{name: "smtp", kind: TypeSMTP, settings: core.ProviderSettings{"host": "localhost", "port": "2525"}, want: "smtp"},
		{name: "ses without region", kind: TypeAWSSES, settings: core.ProviderSettings{}, field: "region"},
		{name: "ses with half credentials", kind: TypeAWSSES, settings: core.ProviderSettings{"region": "eu-west-1", "access_key": "AKIA"}, field: "secret_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.kind, tt.settings)
			if tt.field != "" {
				var ve *core.ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Equal(t, tt.field, ve.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Name())
			assert.NoError(t, p.ValidateConfig())
		})
	}
}

func TestNewUnknownType(t *testing.T) {
	_, err := New("pigeon", core.ProviderSettings{})
	assert.EqualError(t, err, "unsupported provider type: pigeon")
}
