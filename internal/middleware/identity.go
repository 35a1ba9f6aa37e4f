package middleware

import (
    "errors"
    "fmt"
    "strconv"

    "github.com/labstack/echo/v4"
)

// ErrNoIdentity is returned by UserID when the request carries no usable
// subject claim.
var ErrNoIdentity = errors.New("invalid user_id in context")

// UserID returns the authenticated owner ID stored by JWTAuth.  JSON
// numbers decode as float64, so numeric and string subjects are both
// accepted.
func UserID(c echo.Context) (uint64, error) {
    switch t := c.Get(ctxUserID).(type) {
    case uint64:
        return t, nil
    case int:
        if t > 0 {
            return uint64(t), nil
        }
    case int64:
        if t > 0 {
            return uint64(t), nil
        }
    case float64:
        if t > 0 && t == float64(uint64(t)) {
            return uint64(t), nil
        }
    case string:
        if n, err := strconv.ParseUint(t, 10, 64); err == nil && n > 0 {
            return n, nil
        }
    }
    return 0, ErrNoIdentity
}

// identityKey identifies the caller for rate limiting.  Unauthenticated
// callers share the "anon" bucket of their IP.
func identityKey(c echo.Context) string {
    if id, err := UserID(c); err == nil {
        return fmt.Sprintf("%d", id)
    }
    return "anon"
}
