package handler

import (
	"net/http"

	"marketplace/internal/config"
	"marketplace/internal/domain/model"
	"marketplace/internal/middleware"
	"marketplace/internal/usecase"

	"github.com/labstack/echo/v4"
)

// 管理者の確定と配送員の集荷・完了
type FulfillmentHandler struct {
	uc    *usecase.FulfillmentUsecase
	audit *usecase.AuditLogUsecase
}

func NewFulfillmentHandler(uc *usecase.FulfillmentUsecase, audit *usecase.AuditLogUsecase) *FulfillmentHandler {
	return &FulfillmentHandler{uc: uc, audit: audit}
}

type ResolveShipmentRequest struct {
	Status string `json:"status"`
}

func (h *FulfillmentHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	admin := e.Group("/admin/purchases")
	admin.Use(middleware.AuthJWT(cfg))
	admin.Use(middleware.RoleGuard(model.RoleAdmin))

	admin.POST("/:id/confirm", h.confirm)
	admin.GET("/:id/audit-logs", h.auditLogs)

	courier := e.Group("/shipments")
	courier.Use(middleware.AuthJWT(cfg))
	courier.Use(middleware.RoleGuard(model.RoleCourier))

	courier.POST("/:id/pick-up", h.pickUp)
	courier.POST("/:id/resolve", h.resolve)
}

func (h *FulfillmentHandler) confirm(c echo.Context) error {
	actor, ok := actorFromContext(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}

	out, err := h.uc.ConfirmPurchase(c.Request().Context(), actor, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *FulfillmentHandler) auditLogs(c echo.Context) error {
	actor, ok := actorFromContext(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return badRequest(c, "invalid limit")
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return badRequest(c, "invalid offset")
	}

	out, err := h.audit.ListForPurchase(c.Request().Context(), actor, usecase.ListPurchaseAuditInput{
		PurchaseID: id,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *FulfillmentHandler) pickUp(c echo.Context) error {
	actor, ok := actorFromContext(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}

	out, err := h.uc.PickUp(c.Request().Context(), actor, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *FulfillmentHandler) resolve(c echo.Context) error {
	actor, ok := actorFromContext(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}

	var req ResolveShipmentRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	out, err := h.uc.ResolveShipment(c.Request().Context(), actor, id, req.Status)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
