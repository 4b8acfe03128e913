package hostfuncs

import (
	"context"
	"os"

	"github.com/warden-run/warden/domain/entities"
)

// EnvGetRequest is the request type for the env_get host function.
type EnvGetRequest struct {
	Variable string `json:"variable"`
}

// EnvGetResponse is the response type for the env_get host function.
type EnvGetResponse struct {
	Value string         `json:"value,omitempty"`
	Found bool           `json:"found"`
	Error *ErrorResponse `json:"error,omitempty"`
}

// EnvSetRequest is the request type for the env_set host function.
type EnvSetRequest struct {
	Variable string `json:"variable"`
	Value    string `json:"value"`
}

// EnvSetResponse is the response type for the env_set host function.
type EnvSetResponse struct {
	Error *ErrorResponse `json:"error,omitempty"`
}

// PerformEnvGet reads an environment variable on behalf of the guest,
// checked against the scope's environment read grants.
func PerformEnvGet(ctx context.Context, req EnvGetRequest) EnvGetResponse {
	scope, ok := CallScopeFrom(ctx)
	if !ok {
		e := NewInternalError("no call scope")
		return EnvGetResponse{Error: &e}
	}

	decision := scope.Enforcer.CheckEnvironment(
		entities.EnvironmentRequest{Variable: req.Variable, Operation: "read"}, scope.Grants)
	auditDecision(scope, decision)
	if !decision.Allowed {
		e := NewDeniedError(decision)
		return EnvGetResponse{Error: &e}
	}

	value, found := os.LookupEnv(req.Variable)
	return EnvGetResponse{Value: value, Found: found}
}

// PerformEnvSet sets an environment variable on behalf of the guest, checked
// against the scope's environment write grants.
func PerformEnvSet(ctx context.Context, req EnvSetRequest) EnvSetResponse {
	scope, ok := CallScopeFrom(ctx)
	if !ok {
		e := NewInternalError("no call scope")
		return EnvSetResponse{Error: &e}
	}

	decision := scope.Enforcer.CheckEnvironment(
		entities.EnvironmentRequest{Variable: req.Variable, Operation: "write"}, scope.Grants)
	auditDecision(scope, decision)
	if !decision.Allowed {
		e := NewDeniedError(decision)
		return EnvSetResponse{Error: &e}
	}

	if err := os.Setenv(req.Variable, req.Value); err != nil {
		e := NewInternalError(err.Error())
		return EnvSetResponse{Error: &e}
	}
	return EnvSetResponse{}
}
