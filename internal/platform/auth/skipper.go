package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass the bearer check. The gate still sets CORS headers on
// them.
var publicPaths = map[string]struct{}{
	"/health": {},
}

// AuthSkipper matches on the registered route path, not the raw URL.
func AuthSkipper(c echo.Context) bool {
	return IsPublicPath(c.Path())
}

func IsPublicPath(path string) bool {
	_, ok := publicPaths[path]
	return ok
}
