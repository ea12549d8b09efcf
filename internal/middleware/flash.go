package middleware // middleware provides shared request processing for handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/civicdesk/complaint-portal/internal/utils"
)

const (
	flashCookie = "flash"
	flashTTL    = 5 * time.Minute

	ctxFlashes = "flashes"         // messages carried in by the request
	ctxPending = "pending_flashes" // messages queued for the next request
	ctxSecret  = "flash_secret"
)

// Flash reads the signed flash cookie, exposes its messages through
// Flashes(c) and clears the cookie so each message renders once.  Unsigned
// or tampered cookies are dropped silently.
func Flash(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(ctxSecret, secret)
			if ck, err := c.Cookie(flashCookie); err == nil && ck.Value != "" {
				if flashes, err := utils.ParseFlashes(secret, ck.Value); err == nil {
					c.Set(ctxFlashes, flashes)
				}
				c.SetCookie(&http.Cookie{Name: flashCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
			}
			return next(c)
		}
	}
}

// Flashes returns the messages delivered with the current request.
func Flashes(c echo.Context) []utils.Flash {
	if v, ok := c.Get(ctxFlashes).([]utils.Flash); ok {
		return v
	}
	return nil
}

// AddFlash queues a message for the next request.  It requires the Flash
// middleware on the route.
func AddFlash(c echo.Context, category, message string) error {
	secret, _ := c.Get(ctxSecret).(string)
	pending, _ := c.Get(ctxPending).([]utils.Flash)
	pending = append(pending, utils.Flash{Category: category, Message: message})
	c.Set(ctxPending, pending)

	raw, err := utils.SignFlashes(secret, pending, flashTTL)
	if err != nil {
		return err
	}
	c.SetCookie(&http.Cookie{
		Name:     flashCookie,
		Value:    raw,
		Path:     "/",
		MaxAge:   int(flashTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
