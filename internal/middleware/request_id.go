package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const HeaderRequestID = "X-Request-Id"

// 上流から来たIDがあればそれを使う
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Request().Header.Get(HeaderRequestID)
			if rid == "" || len(rid) > 128 {
				rid = uuid.NewString()
			}
			c.Set(CtxRequestIDKey, rid)
			c.Response().Header().Set(HeaderRequestID, rid)
			return next(c)
		}
	}
}
