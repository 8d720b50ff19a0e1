package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletcore/internal/auth"
	"github.com/congo-pay/walletcore/internal/httpx"
)

// TokenAuthenticator resolves an access token to a user id.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, accessToken string) (string, error)
}

// JWTAuth returns a middleware that validates JWT access tokens and checks token version.
func JWTAuth(tokens TokenAuthenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if len(authz) < len("bearer ") || !strings.EqualFold(authz[:len("bearer ")], "bearer ") {
			return auth.ErrMissingBearer
		}
		uid, err := tokens.Authenticate(c.UserContext(), strings.TrimSpace(authz[len("bearer "):]))
		if err != nil {
			return err
		}
		c.Locals(httpx.UserIDKey, uid)
		return c.Next()
	}
}
