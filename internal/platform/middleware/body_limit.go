package middleware

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/bytes"

	"github.com/ehr/cdshooks/internal/platform/fhir"
)

const defaultBodyLimit = 1 << 20

// BodyLimit caps request bodies at limit, written the way echo sizes are
// ("512K", "1M", "2G", or a bare byte count). An unparsable limit falls back
// to 1 MiB.
//
// A declared Content-Length over the limit is answered with 413 before the
// handler runs. Otherwise reading past the limit fails with a 413
// *echo.HTTPError, which handlers pass through.
func BodyLimit(limit string) echo.MiddlewareFunc {
	maxBytes := parseLimit(limit)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}
			if req.ContentLength > maxBytes {
				return c.JSON(http.StatusRequestEntityTooLarge, fhir.TooLargeOutcome(maxBytes))
			}

			req.Body = &limitedReadCloser{ReadCloser: req.Body, remaining: maxBytes}
			return next(c)
		}
	}
}

var errBodyTooLarge = echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")

// limitedReadCloser fails once more than remaining bytes have been read.
type limitedReadCloser struct {
	io.ReadCloser
	remaining int64
	exceeded  bool
}

func (r *limitedReadCloser) Read(p []byte) (int, error) {
	if r.exceeded {
		return 0, errBodyTooLarge
	}

	// One byte past the limit is enough to detect overflow.
	if int64(len(p)) > r.remaining+1 {
		p = p[:r.remaining+1]
	}
	n, err := r.ReadCloser.Read(p)
	r.remaining -= int64(n)
	if r.remaining < 0 {
		r.exceeded = true
		return 0, errBodyTooLarge
	}
	return n, err
}

func parseLimit(s string) int64 {
	n, err := bytes.Parse(s)
	if err != nil || n <= 0 {
		return defaultBodyLimit
	}
	return n
}
