package hostfuncs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warden-run/warden/domain/entities"
	"github.com/warden-run/warden/domain/policy"
)

func envScope(read, write []string) *CallScope {
	return &CallScope{
		TenantID: "acme",
		Grants: &entities.GrantSet{
			Env: &entities.EnvironmentCapability{Read: read, Write: write},
		},
		Enforcer: policy.NewEnforcer(),
	}
}

func TestPerformEnvGet(t *testing.T) {
	t.Setenv("WARDEN_TEST_VALUE", "hello")

	tests := []struct {
		name     string
		grants   []string
		variable string
		denied   bool
		found    bool
		value    string
	}{
		{name: "granted exact", grants: []string{"WARDEN_TEST_VALUE"}, variable: "WARDEN_TEST_VALUE", found: true, value: "hello"},
		{name: "granted glob", grants: []string{"WARDEN_*"}, variable: "WARDEN_TEST_VALUE", found: true, value: "hello"},
		{name: "granted but unset", grants: []string{"WARDEN_*"}, variable: "WARDEN_MISSING", found: false},
		{name: "not granted", grants: []string{"HOME"}, variable: "WARDEN_TEST_VALUE", denied: true},
		{name: "no env grant at all", grants: nil, variable: "WARDEN_TEST_VALUE", denied: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := WithCallScope(context.Background(), envScope(tt.grants, nil))
			resp := PerformEnvGet(ctx, EnvGetRequest{Variable: tt.variable})

			if tt.denied {
				require.NotNil(t, resp.Error)
				assert.Equal(t, "SECURITY_VIOLATION", resp.Error.Error)
				assert.Contains(t, resp.Error.Message, tt.variable)
				return
			}
			require.Nil(t, resp.Error)
			assert.Equal(t, tt.found, resp.Found)
			assert.Equal(t, tt.value, resp.Value)
		})
	}
}

func TestPerformEnvSet(t *testing.T) {
	t.Setenv("WARDEN_SET_TARGET", "before")

	// Read grant alone does not authorize writes.
	ctx := WithCallScope(context.Background(), envScope([]string{"WARDEN_*"}, nil))
	resp := PerformEnvSet(ctx, EnvSetRequest{Variable: "WARDEN_SET_TARGET", Value: "after"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, "SECURITY_VIOLATION", resp.Error.Error)

	ctx = WithCallScope(context.Background(), envScope(nil, []string{"WARDEN_SET_*"}))
	resp = PerformEnvSet(ctx, EnvSetRequest{Variable: "WARDEN_SET_TARGET", Value: "after"})
	require.Nil(t, resp.Error)

	get := PerformEnvGet(WithCallScope(context.Background(), envScope([]string{"WARDEN_*"}, nil)),
		EnvGetRequest{Variable: "WARDEN_SET_TARGET"})
	require.Nil(t, get.Error)
	assert.Equal(t, "after", get.Value)
}
