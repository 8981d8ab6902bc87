package auth

import "solace/internal/domain/models"

// JWTVerifier validates caller bearer tokens. The middleware depends on this
// interface so tests can substitute a static verifier.
type JWTVerifier interface {
	// VerifyToken parses and validates a token string, returning its claims.
	VerifyToken(tokenString string) (*models.SupabaseClaims, error)

	// Close releases verifier resources, such as the JWKS refresh client.
	Close() error
}
