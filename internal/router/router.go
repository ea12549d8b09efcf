package router // package router defines how HTTP routes are registered for the portal

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/civicdesk/complaint-portal/internal/handler"
	"github.com/civicdesk/complaint-portal/internal/middleware"
)

// RegisterRoutes registers operational routes that carry no session state.
// /healthz is used by load balancers and monitoring.
func RegisterRoutes(e *echo.Echo, count func() int) {
	e.GET("/healthz", handler.Health(count))
}

// RegisterComplaints registers the browser pages and the status endpoint.
// Pages share the Flash middleware so redirects can carry messages signed
// with secret.
func RegisterComplaints(e *echo.Echo, h *handler.ComplaintHandler, secret string) {
	pages := e.Group("", middleware.Flash(secret))
	pages.GET("/", h.Index)
	pages.POST("/", h.Submit)
	pages.GET("/verify", h.VerifyForm)
	pages.POST("/verify", h.VerifyManual)
	// emailed link; same workflow as the form
	pages.GET("/verify/:reference_id/:token", h.VerifyLink)

	e.GET("/status/:reference_id", h.Status)
}

// RegisterMetrics exposes the Prometheus registry at /metrics.
func RegisterMetrics(e *echo.Echo, metrics http.Handler) {
	e.GET("/metrics", echo.WrapHandler(metrics))
}
