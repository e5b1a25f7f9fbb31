package authz

import (
	"context"
	_ "embed"
	"encoding/json"
	"os"

	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage/inmem"
	"gopkg.in/yaml.v3"

	"github.com/teranos/AMS/ams/types"
	"github.com/teranos/AMS/errors"
)

const policyQuery = "data.ams.authz.allow"

//go:embed policy.rego
var policyModule string

//go:embed grants.yaml
var defaultGrants []byte

// Grant is one allowed (action, type) pair; "*" matches anything
type Grant struct {
	Action string `yaml:"action" json:"action"`
	Type   string `yaml:"type" json:"type"`
}

// Grants maps role names to their grants
type Grants map[string][]Grant

type grantsFile struct {
	Grants Grants `yaml:"grants"`
}

// ParseGrants decodes a grants YAML document
func ParseGrants(data []byte) (Grants, error) {
	var f grantsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "failed to parse grants")
	}
	if f.Grants == nil {
		return nil, errors.NewInvalidRequestError("grants document has no grants section")
	}
	return f.Grants, nil
}

// LoadGrants reads grants from path, or the embedded defaults when path is empty
func LoadGrants(path string) (Grants, error) {
	if path == "" {
		return ParseGrants(defaultGrants)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read grants file %s", path)
	}
	return ParseGrants(data)
}

// PolicyEngine evaluates the embedded rego policy against role grants
type PolicyEngine struct {
	query rego.PreparedEvalQuery
}

// NewPolicyEngine prepares the policy with the given grants as data
func NewPolicyEngine(ctx context.Context, grants Grants) (*PolicyEngine, error) {
	data, err := grantsData(grants)
	if err != nil {
		return nil, err
	}

	r := rego.New(
		rego.Query(policyQuery),
		rego.Module("policy.rego", policyModule),
		rego.Store(inmem.NewFromObject(data)),
		rego.StrictBuiltinErrors(true),
	)
	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to prepare authorization policy")
	}
	return &PolicyEngine{query: prepared}, nil
}

// Authorize evaluates data.ams.authz.allow for one request
func (e *PolicyEngine) Authorize(ctx context.Context, identity types.Identity, action, resourceType string) (bool, error) {
	roles := make([]interface{}, 0, len(identity.Roles))
	for _, r := range identity.Roles {
		roles = append(roles, r)
	}
	input := map[string]interface{}{
		"identity": map[string]interface{}{
			"email": identity.Email,
			"roles": roles,
		},
		"action":        action,
		"resource_type": resourceType,
	}

	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, errors.Wrap(err, "policy evaluation failed")
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, errors.New("empty policy result")
	}
	allowed, ok := results[0].Expressions[0].Value.(bool)
	if !ok {
		return false, errors.Newf("policy result is %T, want bool", results[0].Expressions[0].Value)
	}
	return allowed, nil
}

// grantsData converts grants into the JSON-shaped document the store expects
func grantsData(grants Grants) (map[string]interface{}, error) {
	payload, err := json.Marshal(grants)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode grants")
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, errors.Wrap(err, "failed to decode grants")
	}
	return map[string]interface{}{
		"ams": map[string]interface{}{
			"grants": decoded,
		},
	}, nil
}
