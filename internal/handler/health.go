package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Health is used by load balancers and monitoring to check the process is
// serving.  count reports how many complaints the in-memory store holds,
// which doubles as a hint that the instance was restarted (count drops to 0).
func Health(count func() int) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok", "complaints": count()})
	}
}
