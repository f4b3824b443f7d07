package approval

import (
	"encoding/base64"
	"encoding/json"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key"

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newTestService(clock *fakeClock) *Service {
	return NewService(testSecret, WithClock(clock.Now))
}

func flip(s string, i int) string {
	repl := byte('A')
	if s[i] == 'A' {
		repl = 'B'
	}
	return s[:i] + string(repl) + s[i+1:]
}

func TestGenerateValidateRoundTrip(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := newTestService(clock)

	cases := []struct{ customerID, email, projectType string }{
		{"a1b2c3d4e5f6", "jane@example.com", "e-commerce"},
		{DeriveCustomerID("ops@studio.io"), "ops@studio.io", "landing page"},
		{"", "", ""},
		{"x", "üñí@例え.jp", "web app / SaaS"},
	}
	for _, tc := range cases {
		token, err := svc.Generate(tc.customerID, tc.email, tc.projectType)
		require.NoError(t, err)

		res := svc.Validate(token)
		require.True(t, res.Valid, "token for %q should validate", tc.email)
		assert.Empty(t, res.Error)
		require.NotNil(t, res.Data)
		assert.Equal(t, tc.customerID, res.Data.CustomerID)
		assert.Equal(t, tc.email, res.Data.Email)
		assert.Equal(t, tc.projectType, res.Data.ProjectType)
		assert.Equal(t, clock.t.UnixMilli(), res.Data.CreatedAt)
		assert.Equal(t, res.Data.CreatedAt+TokenTTL.Milliseconds(), res.Data.ExpiresAt)
	}
}

func TestTokenWireFormat(t *testing.T) {
	clock := &fakeClock{t: time.UnixMilli(1700000000000)}
	svc := newTestService(clock)

	token, err := svc.Generate("abc123def456", "jane@example.com", "portfolio")
	require.NoError(t, err)

	assert.NotContains(t, token, "=")
	parts := strings.Split(token, ".")
	require.Len(t, parts, 2)

	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.ElementsMatch(t, []string{"customerId", "email", "projectType", "createdAt", "expiresAt"}, keys(fields))
	assert.EqualValues(t, 1700000000000, fields["createdAt"])
	assert.EqualValues(t, 1700000000000+7*24*60*60*1000, fields["expiresAt"])

	// Signature covers the encoded text, not the JSON bytes.
	assert.Equal(t, svc.sign(parts[0]), parts[1])
}

func TestIssueReturnsSignedPayload(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)}
	svc := newTestService(clock)

	token, payload, err := svc.Issue("abc123def456", "jane@example.com", "blog")
	require.NoError(t, err)

	res := svc.Validate(token)
	require.True(t, res.Valid)
	assert.Equal(t, payload, *res.Data)
	assert.Equal(t, clock.t.Add(TokenTTL).UnixMilli(), payload.ExpiresAt)
}

func TestValidateAcceptsTokenFromAnotherIssuer(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	issuer := NewService(testSecret, WithClock(clock.Now))
	verifier := NewService(testSecret, WithClock(clock.Now))

	token, err := issuer.Generate("id", "a@b.co", "blog")
	require.NoError(t, err)
	assert.True(t, verifier.Validate(token).Valid)

	other := NewService("another-secret", WithClock(clock.Now))
	res := other.Validate(token)
	assert.False(t, res.Valid)
	assert.Equal(t, ErrBadSignature, res.Error)
}

func TestValidateDetectsSignatureTampering(t *testing.T) {
	svc := newTestService(&fakeClock{t: time.Now()})
	token, err := svc.Generate("abc", "jane@example.com", "e-commerce")
	require.NoError(t, err)

	dot := strings.IndexByte(token, '.')
	for i := dot + 1; i < len(token); i++ {
		res := svc.Validate(flip(token, i))
		assert.False(t, res.Valid, "flipped signature char %d", i)
		assert.Equal(t, ErrBadSignature, res.Error)
		assert.Nil(t, res.Data)
	}
}

func TestValidateDetectsPayloadTampering(t *testing.T) {
	svc := newTestService(&fakeClock{t: time.Now()})
	token, err := svc.Generate("abc", "jane@example.com", "e-commerce")
	require.NoError(t, err)

	dot := strings.IndexByte(token, '.')
	for i := 0; i < dot; i++ {
		res := svc.Validate(flip(token, i))
		assert.False(t, res.Valid, "flipped payload char %d", i)
		assert.Equal(t, ErrBadSignature, res.Error)
	}
}

func TestValidateExpiryBoundary(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)}
	svc := newTestService(clock)
	token, err := svc.Generate("abc", "jane@example.com", "e-commerce")
	require.NoError(t, err)
	expiresAt := clock.t.Add(TokenTTL)

	clock.t = expiresAt.Add(-time.Millisecond)
	assert.True(t, svc.Validate(token).Valid)

	clock.t = expiresAt
	assert.True(t, svc.Validate(token).Valid, "a token is still valid at exactly expiresAt")

	clock.t = expiresAt.Add(time.Millisecond)
	res := svc.Validate(token)
	assert.False(t, res.Valid)
	assert.Equal(t, ErrExpired, res.Error)
	assert.Nil(t, res.Data)
}

func TestValidateMalformed(t *testing.T) {
	svc := newTestService(&fakeClock{t: time.Now()})

	for _, token := range []string{"not-a-real-token", "", ".", "abc.", ".abc"} {
		res := svc.Validate(token)
		assert.False(t, res.Valid, "token %q", token)
		assert.Equal(t, ErrMalformedToken, res.Error, "token %q", token)
	}
}

func TestValidateExtraSeparatorFailsSignature(t *testing.T) {
	svc := newTestService(&fakeClock{t: time.Now()})
	token, err := svc.Generate("abc", "jane@example.com", "e-commerce")
	require.NoError(t, err)

	res := svc.Validate(token + ".extra")
	assert.False(t, res.Valid)
	assert.Equal(t, ErrBadSignature, res.Error)
}

func TestValidateDecodeError(t *testing.T) {
	svc := newTestService(&fakeClock{t: time.Now()})

	// Correctly signed, but not base64.
	notBase64 := "!!!"
	res := svc.Validate(notBase64 + "." + svc.sign(notBase64))
	assert.False(t, res.Valid)
	assert.Equal(t, ErrDecode, res.Error)

	// Correctly signed base64, but not JSON.
	notJSON := base64.RawURLEncoding.EncodeToString([]byte("hello"))
	res = svc.Validate(notJSON + "." + svc.sign(notJSON))
	assert.False(t, res.Valid)
	assert.Equal(t, ErrDecode, res.Error)
}

func TestTokensForDifferentEmailsAreIndependent(t *testing.T) {
	svc := newTestService(&fakeClock{t: time.Now()})

	a, err := svc.Generate(DeriveCustomerID("a@example.com"), "a@example.com", "blog")
	require.NoError(t, err)
	b, err := svc.Generate(DeriveCustomerID("b@example.com"), "b@example.com", "blog")
	require.NoError(t, err)

	payloadA, sigA, _ := strings.Cut(a, ".")
	payloadB, sigB, _ := strings.Cut(b, ".")
	require.NotEqual(t, sigA, sigB)

	res := svc.Validate(payloadA + "." + sigB)
	assert.False(t, res.Valid)
	assert.Equal(t, ErrBadSignature, res.Error)

	res = svc.Validate(payloadB + "." + sigA)
	assert.False(t, res.Valid)
	assert.Equal(t, ErrBadSignature, res.Error)
}

func TestDeriveCustomerID(t *testing.T) {
	id := DeriveCustomerID("User@Example.com")

	assert.Equal(t, DeriveCustomerID("user@example.com"), id)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{12}$`), id)
	assert.NotEqual(t, id, DeriveCustomerID("other@example.com"))
	// sha256("user@example.com") = b4c9a289323b21a01c3e940f150eb9b8c542587f1abfd8f0e1cc1ffc5e475514
	assert.Equal(t, "b4c9a289323b", id)
	assert.Len(t, DeriveCustomerID(""), 12)
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
