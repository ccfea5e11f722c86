package orchestrator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/lambdaterm/internal/config"
	"github.com/yairfalse/lambdaterm/types"
)

func TestBuildRequest(t *testing.T) {
	cfg := config.Default()
	cfg.InstanceIDs = "i-123,i-456,"
	cfg.Token = "tok"

	req, cred, err := BuildRequest(&cfg)

	require.NoError(t, err)
	assert.Equal(t, types.InstanceSet{"i-123", "i-456", ""}, req.InstanceIDs)
	assert.Equal(t, types.Credential("tok"), cred)
}

func TestBuildRequest_Errors(t *testing.T) {
	tests := []struct {
		name  string
		ids   string
		token string
		field string
	}{
		{name: "missing ids", ids: "", token: "tok", field: "INSTANCE_ID"},
		{name: "missing token", ids: "i-1", token: "", field: "LAMBDA_TOKEN"},
		{name: "missing both reports ids first", ids: "", token: "", field: "INSTANCE_ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.InstanceIDs = tt.ids
			cfg.Token = tt.token

			_, _, err := BuildRequest(&cfg)

			var cfgErr *types.ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}
