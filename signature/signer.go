package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
)

// devSecret is only used outside production when SIGNATURE_SECRET is unset.
const devSecret = "pfmp-dev-signature-secret-not-for-production"

var ErrMissingSecret = errors.New("signature: SIGNATURE_SECRET must be set in production")

// Signer computes HMAC-SHA256 digests over the JSON encoding of a payload.
// Payloads must be structs (fixed field order) so the encoding is canonical.
type Signer struct {
	key []byte
}

// NewSigner builds a signer. An empty secret is fatal in production and
// falls back to a logged development key otherwise.
func NewSigner(secret string, production bool) (*Signer, error) {
	if secret == "" {
		if production {
			return nil, ErrMissingSecret
		}
		slog.Warn("SIGNATURE_SECRET not set, using development signing key", "step", "signature.init")
		secret = devSecret
	}
	return &Signer{key: []byte(secret)}, nil
}

// Sign returns the hex HMAC of payload's JSON encoding.
func (s *Signer) Sign(payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return s.SignBytes(body), nil
}

func (s *Signer) SignBytes(body []byte) string {
	mac := hmac.New(sha256.New, s.key)
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the digest and compares it in constant time. It never
// panics and returns false on any encoding or length mismatch.
func (s *Signer) Verify(payload any, sig string) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil || len(got) != sha256.Size {
		return false
	}
	mac := hmac.New(sha256.New, s.key)
	_, _ = mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
