package signature

import (
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePayload() Payload {
	return Payload{
		Type:       TypeConvention,
		ID:         "abc123",
		Student:    "Jean Dupont",
		Enterprise: "ACME SARL",
		Dates:      Dates{Start: "2025-09-01", End: "2025-10-01"},
	}
}

func mustSigner(t *testing.T, secret string) *Signer {
	t.Helper()
	s, err := NewSigner(secret, true)
	require.NoError(t, err)
	return s
}

func TestSignVerifyRoundTrip(t *testing.T) {
	s := mustSigner(t, "K1")
	sig, err := s.Sign(samplePayload())
	require.NoError(t, err)

	assert.Len(t, sig, 64)
	assert.True(t, s.Verify(samplePayload(), sig))
}

func TestVerifyWithOtherSecretFails(t *testing.T) {
	k1 := mustSigner(t, "K1")
	k2 := mustSigner(t, "K2")

	sig, err := k1.Sign(samplePayload())
	require.NoError(t, err)

	assert.False(t, k2.Verify(samplePayload(), sig))
	assert.True(t, k1.Verify(samplePayload(), sig))
}

func TestVerifyRejectsEverySingleBitFlip(t *testing.T) {
	s := mustSigner(t, "K1")
	sig, err := s.Sign(samplePayload())
	require.NoError(t, err)

	raw, err := hex.DecodeString(sig)
	require.NoError(t, err)

	for i := 0; i < len(raw)*8; i++ {
		flipped := append([]byte(nil), raw...)
		flipped[i/8] ^= 1 << (i % 8)
		if s.Verify(samplePayload(), hex.EncodeToString(flipped)) {
			t.Fatalf("bit %d flipped still verifies", i)
		}
	}
}

func TestVerifyMalformedSignature(t *testing.T) {
	s := mustSigner(t, "K1")

	for _, sig := range []string{"", "zz", "abcd", strings.Repeat("0", 63), strings.Repeat("0", 66)} {
		assert.False(t, s.Verify(samplePayload(), sig), "sig %q", sig)
	}
}

func TestSignIsStableAndIgnoresNothingButFields(t *testing.T) {
	s := mustSigner(t, "K1")
	a, err := s.Sign(samplePayload())
	require.NoError(t, err)
	b, err := s.Sign(samplePayload())
	require.NoError(t, err)
	assert.Equal(t, a, b)

	changed := samplePayload()
	changed.Enterprise = "ACME SAS"
	c, err := s.Sign(changed)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestNewSignerWithoutSecret(t *testing.T) {
	_, err := NewSigner("", true)
	assert.ErrorIs(t, err, ErrMissingSecret)

	s, err := NewSigner("", false)
	require.NoError(t, err)
	sig, err := s.Sign(samplePayload())
	require.NoError(t, err)
	assert.True(t, s.Verify(samplePayload(), sig))
}

func TestEncodeUsesShortKeysInFixedOrder(t *testing.T) {
	days := 22
	p := samplePayload()
	p.Type = TypeAttestation
	p.TotalDays = &days

	data, err := Encode(p)
	require.NoError(t, err)
	raw, err := base64.RawURLEncoding.DecodeString(data)
	require.NoError(t, err)

	assert.Equal(t,
		`{"t":"a","id":"abc123","s":"Jean Dupont","e":"ACME SARL","d":{"s":"2025-09-01","f":"2025-10-01"},"h":22}`,
		string(raw))
	assert.NotContains(t, string(raw), "status")
}

func TestDecode(t *testing.T) {
	good, err := Encode(samplePayload())
	require.NoError(t, err)

	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{"valid", good, false},
		{"padded", base64.URLEncoding.EncodeToString([]byte(`{"t":"c","id":"x","s":"","e":"","d":{"s":"","f":""}}`)), false},
		{"not base64", "***", true},
		{"not json", base64.RawURLEncoding.EncodeToString([]byte("hello")), true},
		{"unknown key", base64.RawURLEncoding.EncodeToString([]byte(`{"t":"c","id":"x","st":"VALIDATED_HEAD"}`)), true},
		{"unknown type", base64.RawURLEncoding.EncodeToString([]byte(`{"t":"z","id":"x"}`)), true},
		{"attestation without days", base64.RawURLEncoding.EncodeToString([]byte(`{"t":"a","id":"x"}`)), true},
		{"trailing data", base64.RawURLEncoding.EncodeToString([]byte(`{"t":"c","id":"x"}{}`)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBuildLink(t *testing.T) {
	s := mustSigner(t, "K1")
	link, err := s.BuildLink("https://pfmp.example.fr/", samplePayload())
	require.NoError(t, err)

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "/verify", u.Path)

	p, err := Decode(u.Query().Get("data"))
	require.NoError(t, err)
	assert.Equal(t, samplePayload(), p)
	assert.True(t, s.Verify(p, u.Query().Get("sig")))
}
