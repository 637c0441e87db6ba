package server

import (
	"net/http"

	"marketplace/internal/config"
	"marketplace/internal/handler"

	"github.com/labstack/echo/v4"
)

type Handlers struct {
	Cart        *handler.CartHandler
	Checkout    *handler.CheckoutHandler
	Fulfillment *handler.FulfillmentHandler
}

func RegisterRoutes(e *echo.Echo, cfg config.Config, h Handlers) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	h.Cart.RegisterRoutes(e, cfg)
	h.Checkout.RegisterRoutes(e, cfg)
	h.Fulfillment.RegisterRoutes(e, cfg)
}
