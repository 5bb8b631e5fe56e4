package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/jwalitptl/physio-outreach/pkg/errors"
	"github.com/jwalitptl/physio-outreach/pkg/httputil"
)

// ContextSubject holds the authenticated token subject.
const ContextSubject = "subject"

// AuthMiddleware checks HS256 bearer tokens.
type AuthMiddleware struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewAuthMiddleware(secret, issuer string) *AuthMiddleware {
	return &AuthMiddleware{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}
}

// IssueToken signs a token for subject valid for ttl.
func (m *AuthMiddleware) IssueToken(subject string, ttl time.Duration) (string, error) {
	now := m.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    m.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *AuthMiddleware) parse(raw string) (*jwt.RegisteredClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	if _, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return claims, nil
}

// Authenticate verifies the bearer token and sets the subject in context
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			httputil.RespondWithError(c, errors.Unauthorized(fmt.Errorf("missing authorization header")))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			httputil.RespondWithError(c, errors.Unauthorized(fmt.Errorf("invalid authorization format")))
			return
		}

		claims, err := m.parse(strings.TrimSpace(parts[1]))
		if err != nil {
			httputil.RespondWithError(c, errors.Unauthorized(err))
			return
		}

		c.Set(ContextSubject, claims.Subject)
		c.Next()
	}
}
