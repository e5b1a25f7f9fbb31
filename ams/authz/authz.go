// Package authz decides whether an identity may ingest records.
package authz

import (
	"context"

	"github.com/teranos/AMS/ams/types"
)

// Actions
const (
	ActionCreate  = "create"
	ActionUpdate  = "update"
	ActionDestroy = "destroy"
)

// Authorizer answers capability questions for an identity
type Authorizer interface {
	Authorize(ctx context.Context, identity types.Identity, action, resourceType string) (bool, error)
}

// AuthorizerFunc adapts a function to Authorizer
type AuthorizerFunc func(ctx context.Context, identity types.Identity, action, resourceType string) (bool, error)

// Authorize calls f
func (f AuthorizerFunc) Authorize(ctx context.Context, identity types.Identity, action, resourceType string) (bool, error) {
	return f(ctx, identity, action, resourceType)
}

// AllowAll authorizes everything
var AllowAll = AuthorizerFunc(func(context.Context, types.Identity, string, string) (bool, error) {
	return true, nil
})
