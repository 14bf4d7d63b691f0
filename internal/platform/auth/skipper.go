package auth

import (
	"github.com/labstack/echo/v4"
)

// Routes served without a bearer token. The router registers them under these
// names, so the skip list cannot drift from the routes.
const (
	HealthPath  = "/health"
	MetricsPath = "/metrics"
)

var publicPaths = map[string]bool{
	HealthPath:  true,
	MetricsPath: true,
}

// AuthSkipper matches on the route pattern, never the raw URL, so
// "/health/../api/v1/sessions" style paths cannot slip through.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

func IsPublicPath(path string) bool {
	return publicPaths[path]
}
