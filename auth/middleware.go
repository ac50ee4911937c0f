package auth

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/gkouam/soulbondai-sub005"
)

// Middleware resolves the bearer token of every request and stores the
// Principal in the request context. Requests without a valid token fail
// with soulbond.ErrUnauthenticated.
func Middleware(r *Resolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authz := c.Request().Header.Get(echo.HeaderAuthorization)
			token := ""
			if len(authz) > len("bearer ") && strings.EqualFold(authz[:len("bearer ")], "bearer ") {
				token = strings.TrimSpace(authz[len("bearer "):])
			}

			p, err := r.Resolve(token)
			if err != nil {
				return err
			}
			req := c.Request()
			c.SetRequest(req.WithContext(WithPrincipal(req.Context(), p)))
			return next(c)
		}
	}
}

// RequireCapability rejects requests whose Principal lacks capability with
// soulbond.ErrForbidden.
func RequireCapability(capability Capability) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := FromContext(c.Request().Context())
			if !ok {
				return soulbond.ErrUnauthenticated
			}
			if !p.Has(capability) {
				return fmt.Errorf("%w: missing capability %s", soulbond.ErrForbidden, capability)
			}
			return next(c)
		}
	}
}
