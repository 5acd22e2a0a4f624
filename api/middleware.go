package api

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

// DecompressRequests inflates gzip task bodies before the handlers decode
// them. Identity passes through; any other encoding is refused with 415.
func DecompressRequests() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			gz, err := wantsGzip(req.Header.Get(echo.HeaderContentEncoding))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
			}
			if gz {
				if err := inflate(req); err != nil {
					return echo.NewHTTPError(http.StatusBadRequest, "invalid gzip body")
				}
			}
			return next(c)
		}
	}
}

func wantsGzip(header string) (bool, error) {
	gz := false
	for _, enc := range strings.Split(header, ",") {
		switch enc = strings.ToLower(strings.TrimSpace(enc)); enc {
		case "", "identity":
		case "gzip", "x-gzip":
			if gz {
				return false, errors.New("gzip applied twice")
			}
			gz = true
		default:
			return false, fmt.Errorf("unsupported content encoding %q", enc)
		}
	}
	return gz, nil
}

// inflate swaps req.Body for its decompressed stream. The original body is
// closed on failure.
func inflate(req *http.Request) error {
	zr, err := gzip.NewReader(req.Body)
	if err != nil {
		_ = req.Body.Close()
		return err
	}
	req.Body = inflatedBody{zr: zr, raw: req.Body}
	req.ContentLength = -1
	req.Header.Del(echo.HeaderContentEncoding)
	req.Header.Del(echo.HeaderContentLength)
	return nil
}

type inflatedBody struct {
	zr  *gzip.Reader
	raw io.ReadCloser
}

func (b inflatedBody) Read(p []byte) (int, error) { return b.zr.Read(p) }

func (b inflatedBody) Close() error {
	return errors.Join(b.zr.Close(), b.raw.Close())
}

// RequestLogger logs one entry per request. The stream endpoint is logged
// when the client disconnects.
func RequestLogger(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			entry := logger.WithFields(log.Fields{
				"method":   c.Request().Method,
				"path":     c.Path(),
				"status":   c.Response().Status,
				"duration": time.Since(start).String(),
			})
			if err != nil {
				entry.WithError(err).Warn("request failed")
				return nil
			}
			entry.Debug("request")
			return nil
		}
	}
}
