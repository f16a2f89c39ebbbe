package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// MetricsMiddleware counts requests by method, route pattern and status.
func MetricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)

		cc, ok := c.(*AppContext)
		if !ok || cc.App.Metrics == nil {
			return err
		}
		status := c.Response().Status
		if he, ok := err.(*echo.HTTPError); ok {
			status = he.Code
		}
		cc.App.Metrics.HTTPRequest(c.Request().Method, c.Path(), strconv.Itoa(status))
		return err
	}
}
