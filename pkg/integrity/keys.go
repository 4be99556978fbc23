package integrity

import (
	"context"
	"fmt"
)

// KeyProvider supplies the per-user secret used to derive snapshot
// encryption keys.
type KeyProvider interface {
	Key(ctx context.Context, userID string) (string, error)
}

// DerivedKeyProvider derives per-user secrets from a single root secret
// via HMAC, so no per-user key material needs to be stored.
type DerivedKeyProvider struct {
	secret []byte
}

func NewDerivedKeyProvider(secret []byte) (*DerivedKeyProvider, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("root secret is required")
	}
	return &DerivedKeyProvider{secret: secret}, nil
}

func (p *DerivedKeyProvider) Key(_ context.Context, userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}
	return Sign(p.secret, []byte("user:"+userID)), nil
}
