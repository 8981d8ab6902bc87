package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"solace/internal/domain"
	"solace/internal/domain/models"
)

// allowedAlgs are the signing algorithms Supabase issues; anything else is
// rejected to block algorithm confusion.
var allowedAlgs = map[string]bool{"RS256": true, "ES256": true}

// SupabaseJWTVerifier validates tokens against Supabase's JWKS endpoint.
type SupabaseJWTVerifier struct {
	jwks   keyfunc.Keyfunc
	logger *slog.Logger
}

// NewJWTVerifier builds a verifier backed by the given JWKS endpoint.
// Key caching and refresh follow the endpoint's HTTP cache headers.
func NewJWTVerifier(jwksURL string, logger *slog.Logger) (JWTVerifier, error) {
	if jwksURL == "" {
		return nil, errors.New("JWKS URL cannot be empty")
	}

	jwks, err := keyfunc.NewDefaultCtx(context.Background(), []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("create JWKS client: %w", err)
	}

	logger.Info("JWT verifier initialized", "jwks_url", jwksURL)

	return &SupabaseJWTVerifier{
		jwks:   jwks,
		logger: logger,
	}, nil
}

// VerifyToken parses and validates a token. Every failure collapses to
// ErrUnauthorized; the distinguishing detail goes to the debug log only.
func (v *SupabaseJWTVerifier) VerifyToken(tokenString string) (*models.SupabaseClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.SupabaseClaims{}, v.jwks.Keyfunc)
	if err != nil {
		v.logger.Debug("token parse failed", "error", err)
		return nil, domain.ErrUnauthorized
	}
	if !token.Valid {
		return nil, domain.ErrUnauthorized
	}

	if !allowedAlgs[token.Method.Alg()] {
		v.logger.Warn("token uses unexpected algorithm", "algorithm", token.Method.Alg())
		return nil, domain.ErrUnauthorized
	}

	claims, ok := token.Claims.(*models.SupabaseClaims)
	if !ok {
		return nil, domain.ErrUnauthorized
	}

	if claims.Subject == "" {
		v.logger.Debug("token missing subject claim")
		return nil, domain.ErrUnauthorized
	}

	// Anonymous sessions carry a different role; only full sign-ins may chat
	if claims.Role != "authenticated" {
		v.logger.Debug("token has non-authenticated role",
			"role", claims.Role,
			"user_id", claims.Subject,
		)
		return nil, domain.ErrUnauthorized
	}

	return claims, nil
}

// Close exists for shutdown symmetry; keyfunc manages its own lifecycle.
func (v *SupabaseJWTVerifier) Close() error {
	return nil
}
