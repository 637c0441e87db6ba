package handler

import (
	"net/http"
	"strconv"

	"marketplace/internal/domain/model"
	"marketplace/internal/middleware"
	"marketplace/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}
	l := zerolog.Ctx(c.Request().Context())

	if he, ok := usecase.AsHTTPError(err); ok {
		//原因はログだけに出す
		if he.Status >= http.StatusInternalServerError {
			l.Error().Err(err).Int("status", he.Status).Msg("request failed")
		}
		return c.JSON(he.Status, ErrorResponse{Error: he.Message})
	}

	//500
	l.Error().Err(err).Msg("unexpected error")
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

// AuthJWTが入れた値からActorを組み立てる
func actorFromContext(c echo.Context) (usecase.Actor, bool) {
	userID, ok := c.Get(middleware.CtxUserIDKey).(int64)
	if !ok || userID <= 0 {
		return usecase.Actor{}, false
	}
	role, ok := c.Get(middleware.CtxUserRoleKey).(string)
	if !ok {
		return usecase.Actor{}, false
	}
	return usecase.Actor{UserID: userID, Role: model.Role(role)}, true
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func pathID(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// 空ならdefのまま。数字でなければfalse
func queryInt(c echo.Context, name string, def int) (int, bool) {
	v := c.QueryParam(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
