// Package externalid produces the deterministic external ID that binds a
// (tenant, cloud account) pair to one role trust relationship. The customer
// embeds the value in their IAM role's trust policy at registration time;
// the scanner recomputes it at validation time to detect tampering. Keeping
// it deterministic means nothing secret is stored per account that could
// drift from what the trust policy expects.
package externalid

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Length is the size of a generated external ID in hex characters.
const Length = 32

// keyInfo binds the derived signing key to this purpose so the master
// secret can back other keyed functions without key reuse.
const keyInfo = "ebsight/external-id/v1"

type Generator struct {
	key []byte
}

// NewGenerator derives the signing key from the process-wide master secret.
// The same master secret always yields the same key, so generated ids are
// stable across process restarts.
func NewGenerator(masterSecret string) (*Generator, error) {
	if masterSecret == "" {
		return nil, fmt.Errorf("master secret is empty")
	}

	key := make([]byte, sha256.Size)
	kdf := hkdf.New(sha256.New, []byte(masterSecret), nil, []byte(keyInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("deriving external-id key: %w", err)
	}

	return &Generator{key: key}, nil
}

// Generate returns the external ID for a tenant/account pair. Pure and
// deterministic: the same inputs and key always produce the same id. The
// separator keeps adjacent pairs like ("a","bc") and ("ab","c") distinct.
func (g *Generator) Generate(tenantID, cloudAccountID string) string {
	mac := hmac.New(sha256.New, g.key)
	mac.Write([]byte(tenantID))
	mac.Write([]byte(":"))
	mac.Write([]byte(cloudAccountID))
	return hex.EncodeToString(mac.Sum(nil))[:Length]
}
