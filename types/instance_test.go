package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInstanceSet(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want InstanceSet
	}{
		{name: "single id", raw: "i-123", want: InstanceSet{"i-123"}},
		{name: "two ids keep order", raw: "i-123,i-456", want: InstanceSet{"i-123", "i-456"}},
		{name: "trailing comma kept", raw: "i-123,", want: InstanceSet{"i-123", ""}},
		{name: "doubled separator kept", raw: "a,,b", want: InstanceSet{"a", "", "b"}},
		{name: "no trimming", raw: " a , b", want: InstanceSet{" a ", " b"}},
		{name: "duplicates kept", raw: "a,a", want: InstanceSet{"a", "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInstanceSet(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseInstanceSet_Empty(t *testing.T) {
	_, err := ParseInstanceSet("")

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "INSTANCE_ID", cfgErr.Field)
}

func TestInstanceSet_First(t *testing.T) {
	assert.Equal(t, "i-1", InstanceSet{"i-1", "i-2"}.First())
	assert.Equal(t, "", InstanceSet{}.First())
}

func TestNewCredential(t *testing.T) {
	cred, err := NewCredential("tok")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", cred.AuthorizationHeader())
	assert.Equal(t, "[redacted]", cred.String())

	_, err = NewCredential("")
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "LAMBDA_TOKEN", cfgErr.Field)
}

func TestInstanceStatus(t *testing.T) {
	assert.True(t, StatusTerminating.IsTerminating())
	assert.False(t, StatusTerminated.IsTerminating())
	assert.True(t, StatusTerminated.IsTerminated())
	assert.False(t, StatusUnhealthy.IsTerminated())
	assert.False(t, InstanceStatus("").IsTerminated())
}

func TestInstanceStatus_IsKnown(t *testing.T) {
	for _, s := range []InstanceStatus{StatusBooting, StatusActive, StatusUnhealthy, StatusTerminating, StatusTerminated} {
		assert.True(t, s.IsKnown(), s)
	}
	assert.False(t, InstanceStatus("").IsKnown())
	assert.False(t, InstanceStatus("Terminated").IsKnown())
}
