package authz

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/AMS/ams/types"
	"github.com/teranos/AMS/errors"
)

func newEngine(t *testing.T, grants Grants) *PolicyEngine {
	t.Helper()
	if grants == nil {
		var err error
		grants, err = LoadGrants("")
		require.NoError(t, err)
	}
	engine, err := NewPolicyEngine(context.Background(), grants)
	require.NoError(t, err)
	return engine
}

func TestPolicyEngineAuthorize(t *testing.T) {
	engine := newEngine(t, nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		roles    []string
		action   string
		resource string
		want     bool
	}{
		{"admin wildcard", []string{"admin"}, "anything", "Whatever", true},
		{"aapb-admin create asset", []string{"aapb-admin"}, ActionCreate, types.ModelAsset, true},
		{"aapb-admin update admin data", []string{"aapb-admin"}, ActionUpdate, types.ModelAdminData, true},
		{"ingester field action", []string{"ingester"}, "update_last_pushed", types.ModelAdminData, true},
		{"ingester blanket update", []string{"ingester"}, ActionUpdate, types.ModelAdminData, false},
		{"user has nothing", []string{"user"}, ActionCreate, types.ModelAsset, false},
		{"unknown role", []string{"ghost"}, ActionCreate, types.ModelAsset, false},
		{"no roles", nil, ActionCreate, types.ModelAsset, false},
		{"any role suffices", []string{"user", "ingester"}, ActionCreate, types.ModelCollection, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.Authorize(ctx, types.Identity{Email: "a@example.org", Roles: tt.roles}, tt.action, tt.resource)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGateRequireIngest(t *testing.T) {
	gate := NewGate(newEngine(t, nil), nil)
	ctx := context.Background()

	t.Run("blanket admin data update", func(t *testing.T) {
		assert.NoError(t, gate.RequireIngest(ctx, types.Identity{Email: "a@example.org", Roles: []string{"aapb-admin"}}))
	})

	t.Run("all field-level actions", func(t *testing.T) {
		assert.NoError(t, gate.RequireIngest(ctx, types.Identity{Email: "i@example.org", Roles: []string{"ingester"}}))
	})

	t.Run("missing create capability", func(t *testing.T) {
		err := gate.RequireIngest(ctx, types.Identity{Email: "u@example.org", Roles: []string{"user"}})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrPermissionDenied))
		assert.Contains(t, err.Error(), "u@example.org")
		assert.Contains(t, errors.GetAllDetails(err), "missing capability: create Asset")
	})
}

func TestGateRequiresEveryFieldAction(t *testing.T) {
	grants := Grants{"partial": {}}
	for _, c := range ingestCreateCapabilities {
		grants["partial"] = append(grants["partial"], Grant{Action: c.Action, Type: c.ResourceType})
	}
	// All but the last field-level action
	for _, action := range adminDataFieldActions[:len(adminDataFieldActions)-1] {
		grants["partial"] = append(grants["partial"], Grant{Action: action, Type: types.ModelAdminData})
	}

	gate := NewGate(newEngine(t, grants), nil)
	err := gate.RequireIngest(context.Background(), types.Identity{Email: "p@example.org", Roles: []string{"partial"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPermissionDenied))
	assert.Contains(t, errors.GetAllDetails(err), "missing capability: update_needs_update AdminData")
}

func TestGatePropagatesAuthorizerErrors(t *testing.T) {
	boom := errors.New("policy store offline")
	gate := NewGate(AuthorizerFunc(func(context.Context, types.Identity, string, string) (bool, error) {
		return false, boom
	}), nil)

	err := gate.RequireIngest(context.Background(), types.Identity{Email: "a@example.org"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.False(t, errors.Is(err, errors.ErrPermissionDenied))
}

func TestGateChecksCapabilitiesInOrder(t *testing.T) {
	var asked []Capability
	gate := NewGate(AuthorizerFunc(func(_ context.Context, _ types.Identity, action, resourceType string) (bool, error) {
		asked = append(asked, Capability{action, resourceType})
		return true, nil
	}), nil)

	require.NoError(t, gate.RequireIngest(context.Background(), types.Identity{}))
	// Seven creates, then the blanket update short-circuits the field actions
	require.Len(t, asked, 8)
	assert.Equal(t, Capability{ActionCreate, types.ModelAsset}, asked[0])
	assert.Equal(t, Capability{ActionUpdate, types.ModelAdminData}, asked[7])
}

func TestLoadGrantsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grants.yaml")
	require.NoError(t, os.WriteFile(path, []byte("grants:\n  curator:\n    - { action: create, type: Asset }\n"), 0644))

	grants, err := LoadGrants(path)
	require.NoError(t, err)
	assert.Equal(t, Grants{"curator": {{Action: "create", Type: "Asset"}}}, grants)

	_, err = LoadGrants(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = ParseGrants([]byte("roles: {}\n"))
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}
