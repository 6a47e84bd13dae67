package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTVerifier accepts HS256 tokens signed with the shared secret. Tokens must
// carry exp; nbf and iat are honored when present. Claims beyond validity are
// not inspected: the relay has no user identity model, a valid token only
// grants the right to open a signaling connection.
type JWTVerifier struct {
	secret []byte
	now    func() time.Time
}

func NewJWTVerifier(secret string) JWTVerifier {
	return JWTVerifier{
		secret: []byte(secret),
		now:    time.Now,
	}
}

func (v JWTVerifier) Verify(token string) error {
	if token == "" || len(v.secret) == 0 {
		return ErrInvalidCredentials
	}
	parsed, err := jwt.Parse(
		token,
		func(t *jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil || !parsed.Valid {
		return ErrInvalidCredentials
	}
	return nil
}
