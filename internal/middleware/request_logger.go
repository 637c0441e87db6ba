package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// リクエスト単位のロガーをcontextに入れて、終わったら1行出す
func RequestLogger(base zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			rid, _ := c.Get(CtxRequestIDKey).(string)
			l := base.With().
				Str("request_id", rid).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Logger()
			c.SetRequest(req.WithContext(l.WithContext(req.Context())))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			ev := l.Info()
			switch {
			case status >= 500:
				ev = l.Error()
			case status >= 400:
				ev = l.Warn()
			}
			if uid, ok := c.Get(CtxUserIDKey).(int64); ok {
				ev = ev.Int64("user_id", uid)
			}
			if role, ok := c.Get(CtxUserRoleKey).(string); ok {
				ev = ev.Str("role", role)
			}
			ev.Int("status", status).
				Dur("latency", time.Since(start)).
				Msg("request completed")
			return nil
		}
	}
}
