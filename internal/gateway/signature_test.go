package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignerSignDeterministic(t *testing.T) {
	s := NewSigner("topsecret")

	fields := map[string]string{
		"event_type":   "payment_held",
		"external_ref": "ps_123",
		"amount":       "150000",
	}

	first := s.Sign(fields)
	second := s.Sign(fields)
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestSignerIgnoresSignatureField(t *testing.T) {
	s := NewSigner("topsecret")

	clean := map[string]string{
		"event_type":   "payment_held",
		"external_ref": "ps_123",
	}
	withSig := map[string]string{
		"event_type":   "payment_held",
		"external_ref": "ps_123",
		"signature":    "deadbeef",
	}

	assert.Equal(t, s.Sign(clean), s.Sign(withSig))
}

func TestSignerVerify(t *testing.T) {
	s := NewSigner("topsecret")

	fields := map[string]string{
		"event_type":   "payment_held",
		"external_ref": "ps_123",
	}
	sig := s.Sign(fields)

	assert.True(t, s.Verify(fields, sig))
	assert.False(t, s.Verify(fields, "0000"))

	fields["amount"] = "1"
	assert.False(t, s.Verify(fields, sig))
}

func TestSignerDifferentSecrets(t *testing.T) {
	fields := map[string]string{"external_ref": "ps_123"}

	a := NewSigner("one").Sign(fields)
	b := NewSigner("two").Sign(fields)
	assert.NotEqual(t, a, b)
}
