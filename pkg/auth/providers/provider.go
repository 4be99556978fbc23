package providers

import "context"

// SessionVerifier verifies a session token issued by the external
// session authority and returns the identity triple it encodes. The
// issuance protocol itself lives outside this service.
type SessionVerifier interface {
	VerifySession(ctx context.Context, token string) (*SessionClaims, error)
}

// SessionClaims is the verified identity triple attached to a push.
type SessionClaims struct {
	UserID    string `json:"uid"`
	SessionID string `json:"sid"`
	DeviceID  string `json:"did"`
}
