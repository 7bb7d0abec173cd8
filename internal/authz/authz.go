package authz

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

//go:embed policy.rego
var policy string

const RoleAdmin = "admin"

// Identity is the caller as asserted by the upstream gateway.
type Identity struct {
	UserID string
	Role   string
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Authorizer evaluates the embedded Rego policy. Actions are namespaced
// "public:", "user:" or "admin:".
type Authorizer struct {
	query rego.PreparedEvalQuery
}

func NewAuthorizer(ctx context.Context) (*Authorizer, error) {
	query, err := rego.New(
		rego.Query("data.skybooking.authz.allow"),
		rego.Module("policy.rego", policy),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare authz policy: %w", err)
	}
	return &Authorizer{query: query}, nil
}

func (a *Authorizer) Allowed(ctx context.Context, who Identity, action string) (bool, error) {
	input := map[string]interface{}{
		"action": action,
		"user": map[string]interface{}{
			"id":   who.UserID,
			"role": who.Role,
		},
	}
	rs, err := a.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate authz policy: %w", err)
	}
	return rs.Allowed(), nil
}
