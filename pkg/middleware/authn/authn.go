// Package authn authenticates requests carrying a bearer access token.
package authn

import (
	"strings"

	"github.com/nimburion/eventsvc/pkg/auth"
	"github.com/nimburion/eventsvc/pkg/controller"
	"github.com/nimburion/eventsvc/pkg/server/router"
)

// ClaimsKey is the router.Context key holding the validated *auth.Claims.
const ClaimsKey = "claims"

// Authenticate requires "Authorization: Bearer <token>" and validates the
// token with validator. On success the claims are stored in the request
// context (auth.GetClaims) and under ClaimsKey. Any failure answers 401
// with a WWW-Authenticate challenge.
func Authenticate(validator auth.JWTValidator) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			token, ok := bearerToken(c.Request().Header.Get("Authorization"))
			if !ok {
				return unauthorized(c)
			}

			claims, err := validator.Validate(c.Request().Context(), token)
			if err != nil {
				return unauthorized(c)
			}

			req := c.Request()
			c.SetRequest(req.WithContext(auth.WithClaims(req.Context(), claims)))
			c.Set(ClaimsKey, claims)
			return next(c)
		}
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(c router.Context) error {
	c.Response().Header().Set("WWW-Authenticate", "Bearer")
	return controller.Error(c, controller.NewUnauthorizedError(controller.ReasonNotAuthenticated, "Could not validate credentials"))
}
