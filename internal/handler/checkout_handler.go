package handler

import (
	"net/http"

	"marketplace/internal/config"
	"marketplace/internal/domain/model"
	"marketplace/internal/middleware"
	"marketplace/internal/usecase"

	"github.com/labstack/echo/v4"
)

const HeaderIdempotencyKey = "X-Idempotency-Key"

type CheckoutHandler struct {
	uc *usecase.CheckoutUsecase
}

func NewCheckoutHandler(uc *usecase.CheckoutUsecase) *CheckoutHandler {
	return &CheckoutHandler{uc: uc}
}

type CheckoutRequest struct {
	PurchaseIDs []int64 `json:"purchase_id"`
}

func (h *CheckoutHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	e.POST("/purchases/checkout", h.checkout,
		middleware.AuthJWT(cfg),
		middleware.RoleGuard(model.RoleUser),
	)
}

func (h *CheckoutHandler) checkout(c echo.Context) error {
	actor, ok := actorFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	//二重送信防止キーはヘッダーから受け取る（bodyには入れない）
	out, err := h.uc.BuyProducts(c.Request().Context(), actor, usecase.BuyProductsInput{
		PurchaseIDs:    req.PurchaseIDs,
		IdempotencyKey: c.Request().Header.Get(HeaderIdempotencyKey),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
