package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	TokenKey  contextKey = "bearer_token"
	ClaimsKey contextKey = "token_claims"
)

// DefaultCredential stands in for a missing Authorization header when the
// gate is not configured to require authentication.
const DefaultCredential = "Bearer anonymous"

const bearerScheme = "Bearer"

// TokenVerifier decides whether a bearer token may call the service.
// audience is the literal URL the client invoked, which CDS Hooks clients
// place in the JWT aud claim.
type TokenVerifier interface {
	Verify(ctx context.Context, token, audience string) error
}

// TokenVerifierFunc is a function adapter for TokenVerifier.
type TokenVerifierFunc func(ctx context.Context, token, audience string) error

func (f TokenVerifierFunc) Verify(ctx context.Context, token, audience string) error {
	return f(ctx, token, audience)
}

// AcceptAllVerifier accepts every token. Signature, audience, expiry and
// issuer trust are not checked.
type AcceptAllVerifier struct{}

func (AcceptAllVerifier) Verify(context.Context, string, string) error {
	return nil
}

// TokenClaims are claims read from a bearer JWT without verifying it. They
// are for logging and correlation only and must not be trusted.
type TokenClaims struct {
	Issuer   string
	Subject  string
	Audience []string
}

type GateConfig struct {
	// RequireAuth rejects calls without an Authorization header instead of
	// substituting DefaultCredential.
	RequireAuth bool
	Verifier    TokenVerifier
	Skipper     func(c echo.Context) bool
	Logger      zerolog.Logger
}

// Gate returns middleware that attaches the CDS Hooks CORS headers to every
// response, answers preflight requests, and rejects calls that do not carry
// a Bearer credential accepted by the configured verifier.
func Gate(cfg GateConfig) echo.MiddlewareFunc {
	if cfg.Verifier == nil {
		cfg.Verifier = AcceptAllVerifier{}
	}
	if cfg.Skipper == nil {
		cfg.Skipper = AuthSkipper
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			SetCORSHeaders(c.Response().Header())

			req := c.Request()
			if req.Method == http.MethodOptions {
				return c.NoContent(http.StatusNoContent)
			}
			if cfg.Skipper(c) {
				return next(c)
			}

			rid, _ := c.Get("request_id").(string)

			authHeader := req.Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				if cfg.RequireAuth {
					cfg.Logger.Warn().Str("request_id", rid).Msg("rejected call without authorization header")
					return challenge(c, "missing bearer token")
				}
				cfg.Logger.Warn().Str("request_id", rid).Msg("no authorization header, using default credential")
				authHeader = DefaultCredential
			}

			scheme, token, _ := strings.Cut(authHeader, " ")
			if !strings.EqualFold(scheme, bearerScheme) {
				cfg.Logger.Warn().Str("request_id", rid).Str("scheme", scheme).Msg("rejected non-bearer authorization")
				return challenge(c, "authorization scheme must be Bearer")
			}
			token = strings.TrimSpace(token)

			if err := cfg.Verifier.Verify(req.Context(), token, RequestURL(c)); err != nil {
				cfg.Logger.Warn().Err(err).Str("request_id", rid).Msg("bearer token rejected")
				return challenge(c, err.Error())
			}

			ctx := context.WithValue(req.Context(), TokenKey, token)
			if claims, ok := InspectClaims(token); ok {
				ctx = context.WithValue(ctx, ClaimsKey, claims)
				cfg.Logger.Debug().
					Str("request_id", rid).
					Str("iss", claims.Issuer).
					Str("sub", claims.Subject).
					Msg("bearer token claims")
			}
			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}

// challenge writes a 401 with an empty body and a Bearer challenge naming the
// request host as realm.
func challenge(c echo.Context, description string) error {
	c.Response().Header().Set(echo.HeaderWWWAuthenticate, fmt.Sprintf(
		`Bearer realm=%q, error="invalid_token", error_description=%q`,
		c.Request().Host, description,
	))
	return c.NoContent(http.StatusUnauthorized)
}

// RequestURL reconstructs the absolute URL the client called.
func RequestURL(c echo.Context) string {
	req := c.Request()
	return c.Scheme() + "://" + req.Host + req.URL.RequestURI()
}

// InspectClaims parses token as a JWT without verifying its signature. It
// reports false for tokens that are not JWTs.
func InspectClaims(token string) (TokenClaims, bool) {
	if token == "" {
		return TokenClaims{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenClaims{}, false
	}

	var out TokenClaims
	out.Issuer, _ = claims.GetIssuer()
	out.Subject, _ = claims.GetSubject()
	if aud, err := claims.GetAudience(); err == nil {
		out.Audience = []string(aud)
	}
	return out, true
}

func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(TokenKey).(string)
	return token
}

func ClaimsFromContext(ctx context.Context) (TokenClaims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(TokenClaims)
	return claims, ok
}
