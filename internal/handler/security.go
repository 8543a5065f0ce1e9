package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/xenking/hemenye/internal/domain/auth"
)

// Claims are the bearer token claims. Subject holds the user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator turns HS256 bearer tokens into actors.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

// NewAuthenticator creates an Authenticator verifying tokens with secret.
func NewAuthenticator(secret []byte) *Authenticator {
	return &Authenticator{secret: secret, now: time.Now}
}

// Issue signs a token for actor valid for ttl.
func (a *Authenticator) Issue(actor auth.Actor, ttl time.Duration) (string, error) {
	now := a.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(actor.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

// Parse validates token and returns its actor.
func (a *Authenticator) Parse(token string) (auth.Actor, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return auth.Actor{}, errors.Wrap(err, "parse token")
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return auth.Actor{}, errors.Errorf("invalid subject %q", claims.Subject)
	}
	role := auth.Role(claims.Role)
	if !role.Valid() {
		return auth.Actor{}, errors.Errorf("invalid role %q", claims.Role)
	}
	return auth.Actor{UserID: id, Role: role}, nil
}

// Middleware stores the bearer token's actor in the request context.
// Requests without Authorization pass through anonymously; a malformed or
// invalid token is rejected with 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") {
			writeError(w, r, auth.ErrUnauthenticated)
			return
		}
		actor, err := a.Parse(strings.TrimSpace(token))
		if err != nil {
			zctx.From(r.Context()).Debug("Rejected bearer token", zap.Error(err))
			writeError(w, r, auth.ErrUnauthenticated)
			return
		}

		ctx := auth.WithActor(r.Context(), actor)
		ctx = zctx.With(ctx, zap.Int64("user_id", actor.UserID), zap.String("role", string(actor.Role)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
