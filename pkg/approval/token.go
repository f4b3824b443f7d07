// Package approval issues and checks the signed links sent to customers to approve or reject a
// proposal. A token is base64url(JSON(payload)) + "." + base64url(HMAC-SHA256(secret, encoded payload)),
// both parts unpadded, so it can be validated with nothing but the shared secret.
package approval

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// TokenTTL is fixed policy: every token expires seven days after issuance.
const TokenTTL = 7 * 24 * time.Hour

type ErrorKind string

const (
	ErrMalformedToken ErrorKind = "MALFORMED_TOKEN"
	ErrBadSignature   ErrorKind = "BAD_SIGNATURE"
	ErrDecode         ErrorKind = "DECODE_ERROR"
	ErrExpired        ErrorKind = "EXPIRED"
)

type TokenPayload struct {
	CustomerID  string `json:"customerId"`
	Email       string `json:"email"`
	ProjectType string `json:"projectType"`
	CreatedAt   int64  `json:"createdAt"`
	ExpiresAt   int64  `json:"expiresAt"`
}

// Result is the outcome of Validate. Data is only set when Valid is true.
type Result struct {
	Valid bool
	Data  *TokenPayload
	Error ErrorKind
}

var encoding = base64.RawURLEncoding

type Service struct {
	secret []byte
	now    func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now, mainly for expiry tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(secret string, opts ...Option) *Service {
	s := &Service{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DeriveCustomerID returns a short, stable, non-reversible handle for an email address:
// the first 12 hex characters of SHA-256 over the lowercased address.
func DeriveCustomerID(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(email)))
	return hex.EncodeToString(sum[:])[:12]
}

func (s *Service) Generate(customerID, email, projectType string) (string, error) {
	token, _, err := s.Issue(customerID, email, projectType)
	return token, err
}

// Issue is Generate that also returns the signed payload, so callers can record the exact
// issuance and expiry instants carried by the token.
func (s *Service) Issue(customerID, email, projectType string) (string, TokenPayload, error) {
	now := s.now()
	payload := TokenPayload{
		CustomerID:  customerID,
		Email:       email,
		ProjectType: projectType,
		CreatedAt:   now.UnixMilli(),
		ExpiresAt:   now.Add(TokenTTL).UnixMilli(),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", TokenPayload{}, err
	}
	encoded := encoding.EncodeToString(raw)
	return encoded + "." + s.sign(encoded), payload, nil
}

// Validate never panics; every failure is reported through Result.Error.
func (s *Service) Validate(token string) Result {
	encoded, signature, ok := strings.Cut(token, ".")
	if !ok || encoded == "" || signature == "" {
		return Result{Error: ErrMalformedToken}
	}

	expected := s.sign(encoded)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return Result{Error: ErrBadSignature}
	}

	raw, err := encoding.DecodeString(encoded)
	if err != nil {
		return Result{Error: ErrDecode}
	}
	var payload TokenPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Result{Error: ErrDecode}
	}

	if s.now().UnixMilli() > payload.ExpiresAt {
		return Result{Error: ErrExpired}
	}

	return Result{Valid: true, Data: &payload}
}

func (s *Service) sign(encoded string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(encoded))
	return encoding.EncodeToString(mac.Sum(nil))
}
