package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/idleforge/idlesync/pkg/integrity"
)

// HMACSessionVerifier verifies tokens of the form
// userID.sessionID.deviceID.signature, where the signature is the
// HMAC-SHA256 of the first three segments under a shared secret.
type HMACSessionVerifier struct {
	secret []byte
}

func NewHMACSessionVerifier(secret []byte) (*HMACSessionVerifier, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("session secret is required")
	}
	return &HMACSessionVerifier{secret: secret}, nil
}

func (v *HMACSessionVerifier) VerifySession(_ context.Context, token string) (*SessionClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return nil, fmt.Errorf("malformed session token")
	}
	payload := strings.Join(parts[:3], ".")
	if !integrity.VerifySignature(v.secret, []byte(payload), parts[3]) {
		return nil, fmt.Errorf("invalid session signature")
	}
	return &SessionClaims{
		UserID:    parts[0],
		SessionID: parts[1],
		DeviceID:  parts[2],
	}, nil
}

// IssueToken signs an identity triple into a token. Intended for tests
// and local development; production tokens come from the session
// authority.
func (v *HMACSessionVerifier) IssueToken(userID, sessionID, deviceID string) string {
	payload := strings.Join([]string{userID, sessionID, deviceID}, ".")
	return payload + "." + integrity.Sign(v.secret, []byte(payload))
}
