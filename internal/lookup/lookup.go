// Package lookup defines the external account/unit lookup collaborator
// consumed by the identity resolver, plus its concrete implementations.
package lookup

import (
	"context"

	"github.com/cadlive/livemap/pkg/core"
)

// Lookup resolves a canonical account identifier to a persistent account
// and, if on duty, an active unit. A (nil, nil) return means the account
// does not exist; errors mean the lookup itself failed.
type Lookup interface {
	AccountByCanonicalID(ctx context.Context, scheme core.IdentifierScheme, canonicalID string) (*core.ResolvedIdentity, error)
	Healthcheck(ctx context.Context) error
	Close() error
}
