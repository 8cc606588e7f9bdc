package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Signer computes and verifies webhook signatures: an HMAC-SHA256 over the
// payload's key=value pairs joined with '&' in sorted key order, excluding
// the signature field itself, keyed with the pre-shared secret.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign returns the hex signature of the payload.
func (s *Signer) Sign(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == "signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+fields[k])
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(strings.Join(pairs, "&")))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the payload's signature in constant time.
func (s *Signer) Verify(fields map[string]string, signature string) bool {
	expected := s.Sign(fields)
	return hmac.Equal([]byte(expected), []byte(signature))
}
