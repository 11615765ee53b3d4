package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// BasePath задаёт префикс всех маршрутов API.
const BasePath = "/api/v1/accountancy"

// NewRouter собирает gin.Engine с маршрутами API и служебными middleware.
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(recovery(h.logger), requestLogger(h.logger))

	api := router.Group(BasePath)

	invoices := api.Group("/invoice")
	invoices.POST("/outcome", h.createOutcomeInvoice)
	invoices.PUT("/cancel/:id", h.transition(h.invoices.CancelInvoice))
	invoices.PUT("/pay/:id", h.transition(h.invoices.PayInvoice))
	invoices.PUT("/refund/:id", h.transition(h.invoices.RefundInvoice))
	invoices.GET("/order/:orderId", h.getInvoiceByOrder)
	invoices.GET("/:id", h.getInvoice)
	invoices.GET("/:id/timeline", h.getTimeline)

	prices := api.Group("/price-item")
	prices.POST("", h.createPriceItem)
	prices.GET("", h.listPriceItems)
	prices.GET("/sale-price", h.getSalePrices)
	prices.PUT("/:id", h.updatePriceItem)
	prices.GET("/:id", h.getPriceItem)

	purchases := api.Group("/purchased-costs")
	purchases.POST("", h.recordPurchase)
	purchases.GET("", h.queryPurchases)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, newAPIError(http.StatusNotFound, "route not found"))
	})

	return router
}
