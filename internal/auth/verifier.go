package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Claims is the identity extracted from a verified access token.
type Claims struct {
	UserID string
	Roles  []string
}

// Verifier checks bearer tokens issued by the platform identity service.
// Tokens are HS256-signed; the subject carries the user id and the `roles`
// claim gates administrative access.
type Verifier struct {
	Secret    []byte
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Now       func() time.Time
}

func (v Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// Verify parses, verifies, and validates a raw compact token.
func (v Verifier) Verify(raw string) (Claims, error) {
	if len(v.Secret) == 0 {
		return Claims{}, errors.New("auth: verifier secret not configured")
	}
	tok, err := jwt.ParseString(raw,
		jwt.WithKey(jwa.HS256, v.Secret),
		jwt.WithValidate(false),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("auth: parse token: %w", err)
	}
	if err := v.validate(tok); err != nil {
		return Claims{}, err
	}

	claims := Claims{UserID: tok.Subject()}
	if claims.UserID == "" {
		return Claims{}, errors.New("auth: token missing subject")
	}
	claims.Roles = extractRoles(tok)
	return claims, nil
}

func (v Verifier) validate(tok jwt.Token) error {
	options := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(v.now)),
	}
	if v.ClockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(v.ClockSkew))
	}
	if v.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		options = append(options, jwt.WithAudience(v.Audience))
	}
	if err := jwt.Validate(tok, options...); err != nil {
		return fmt.Errorf("auth: validate token: %w", err)
	}
	return nil
}

func extractRoles(tok jwt.Token) []string {
	raw, ok := tok.Get("roles")
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}
