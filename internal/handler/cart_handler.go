package handler

import (
	"net/http"

	"marketplace/internal/config"
	"marketplace/internal/domain/model"
	"marketplace/internal/middleware"
	"marketplace/internal/usecase"

	"github.com/labstack/echo/v4"
)

type CartHandler struct {
	uc *usecase.CartUsecase
}

func NewCartHandler(uc *usecase.CartUsecase) *CartHandler {
	return &CartHandler{uc: uc}
}

type AddToCartRequest struct {
	StoreProductID int64 `json:"stores_products_id"`
	BuyCount       int64 `json:"buy_count"`
}

type UpdatePurchaseRequest struct {
	BuyCount int64 `json:"buy_count"`
}

type DeletePurchasesRequest struct {
	PurchaseIDs []int64 `json:"purchase_id"`
}

func (h *CartHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	g := e.Group("/purchases")
	g.Use(middleware.AuthJWT(cfg))

	g.POST("/cart", h.add, middleware.RoleGuard(model.RoleUser))
	g.GET("", h.list)
	g.PATCH("/:id", h.update, middleware.RoleGuard(model.RoleUser))
	g.DELETE("", h.delete)
}

func (h *CartHandler) add(c echo.Context) error {
	actor, ok := actorFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req AddToCartRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	out, err := h.uc.AddToCart(c.Request().Context(), actor, usecase.AddToCartInput{
		StoreProductID: req.StoreProductID,
		BuyCount:       req.BuyCount,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) list(c echo.Context) error {
	actor, ok := actorFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	// 0はusecase側でdefaultにする
	page, ok := queryInt(c, "page", 0)
	if !ok {
		return badRequest(c, "invalid page")
	}
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return badRequest(c, "invalid limit")
	}

	out, err := h.uc.ListPurchases(c.Request().Context(), actor, usecase.ListPurchasesInput{
		Status: c.QueryParam("status"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) update(c echo.Context) error {
	actor, ok := actorFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}

	var req UpdatePurchaseRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	out, err := h.uc.UpdatePurchase(c.Request().Context(), actor, usecase.UpdatePurchaseInput{
		PurchaseID: id,
		BuyCount:   req.BuyCount,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) delete(c echo.Context) error {
	actor, ok := actorFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req DeletePurchasesRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	out, err := h.uc.DeletePurchases(c.Request().Context(), actor, req.PurchaseIDs)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
