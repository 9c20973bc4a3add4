package auth

import (
	"net/http"
	"strings"
)

// CDS Hooks clients run in the EHR's browser origin, so every response
// carries a permissive CORS header set.
var (
	corsAllowMethods = []string{
		http.MethodGet,
		http.MethodPost,
		http.MethodOptions,
	}
	corsAllowHeaders = []string{
		"Content-Type",
		"Authorization",
	}
	corsExposeHeaders = []string{
		"Origin",
		"Accept",
		"Content-Location",
		"Location",
		"X-Requested-With",
	}
)

// SetCORSHeaders writes the CORS response headers.
func SetCORSHeaders(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", strings.Join(corsAllowMethods, ", "))
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Set("Access-Control-Allow-Headers", strings.Join(corsAllowHeaders, ", "))
	h.Set("Access-Control-Expose-Headers", strings.Join(corsExposeHeaders, ", "))
}
