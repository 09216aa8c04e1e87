// Package auth validates staff and device bearer tokens.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config holds token verification parameters.
type Config struct {
	Secret string
	Issuer string
}

// Claims is the verified identity of a caller. OrganizationID scopes every request.
type Claims struct {
	Subject        string
	OrganizationID string
	BranchID       string
	Scopes         []string
	ExpiresAt      time.Time
}

// HasScope reports whether the token grants scope.
func (c *Claims) HasScope(scope string) bool {
	return c != nil && slices.Contains(c.Scopes, scope)
}

var (
	// ErrMissingToken is returned when no bearer token was presented.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken wraps every verification failure.
	ErrInvalidToken = errors.New("invalid bearer token")
)

// tokenClaims is the wire form. Older device tokens carry tenant_id instead of org_id.
type tokenClaims struct {
	jwt.RegisteredClaims
	OrganizationID string    `json:"org_id,omitempty"`
	TenantID       string    `json:"tenant_id,omitempty"`
	BranchID       string    `json:"branch_id,omitempty"`
	Scopes         scopeList `json:"scopes,omitempty"`
}

// scopeList accepts both a space separated string and a JSON array.
type scopeList []string

func (s scopeList) MarshalJSON() ([]byte, error) {
	return json.Marshal(strings.Join(s, " "))
}

func (s *scopeList) UnmarshalJSON(data []byte) error {
	var joined string
	if err := json.Unmarshal(data, &joined); err == nil {
		*s = strings.Fields(joined)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("scopes: %w", err)
	}
	*s = slices.DeleteFunc(list, func(v string) bool { return v == "" })
	return nil
}

// Parse verifies an HS256 token against cfg and returns its claims.
func Parse(token string, cfg Config) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	var tc tokenClaims
	_, err := jwt.ParseWithClaims(token, &tc, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	},
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	organizationID := tc.OrganizationID
	if organizationID == "" {
		organizationID = tc.TenantID
	}
	if tc.Subject == "" || organizationID == "" {
		return nil, fmt.Errorf("%w: subject and organization are required", ErrInvalidToken)
	}

	return &Claims{
		Subject:        tc.Subject,
		OrganizationID: organizationID,
		BranchID:       tc.BranchID,
		Scopes:         tc.Scopes,
		ExpiresAt:      tc.ExpiresAt.Time,
	}, nil
}

// Sign issues an HS256 token valid for ttl. Device provisioning and tests use it.
func Sign(cfg Config, subject, organizationID, branchID string, scopes []string, ttl time.Duration) (string, error) {
	now := time.Now()
	tc := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		OrganizationID: organizationID,
		BranchID:       branchID,
		Scopes:         scopes,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, tc).SignedString([]byte(cfg.Secret))
}
