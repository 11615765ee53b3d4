// Package rest публикует операции бухгалтерии по HTTP (gin).
package rest

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/accountancy/internal/domain"
	"github.com/vladislavdragonenkov/accountancy/internal/service/invoice"
	"github.com/vladislavdragonenkov/accountancy/internal/wire"
)

// InvoiceService управляет накладными.
type InvoiceService interface {
	CreateOutcomeInvoice(ctx context.Context, orderID int64, items []invoice.LineItemRequest) (domain.Invoice, error)
	CancelInvoice(ctx context.Context, id int64) (domain.Invoice, error)
	PayInvoice(ctx context.Context, id int64) (domain.Invoice, error)
	RefundInvoice(ctx context.Context, id int64) (domain.Invoice, error)
	GetInvoice(ctx context.Context, id int64) (domain.Invoice, error)
	GetActiveInvoiceByOrder(ctx context.Context, orderID int64) (domain.Invoice, error)
	ListInvoicesByOrder(ctx context.Context, orderID int64) ([]domain.Invoice, error)
	Timeline(ctx context.Context, id int64) ([]domain.TimelineEvent, error)
}

// PriceService ведёт прайс-лист.
type PriceService interface {
	CreatePriceItem(ctx context.Context, productID int64, price, markup decimal.Decimal) (domain.PriceItem, error)
	UpdatePriceItem(ctx context.Context, id int64, price, markup decimal.Decimal) (domain.PriceItem, error)
	GetPriceItem(ctx context.Context, id int64) (domain.PriceItem, error)
	GetPricesByProductIDs(ctx context.Context, productIDs []int64, applyMarkup bool) ([]domain.PriceItem, error)
}

// PurchaseService ведёт журнал закупок.
type PurchaseService interface {
	Record(ctx context.Context, priceItemID int64, quantity int32, dateOfPurchase time.Time) (domain.PurchasedCosts, error)
	Query(ctx context.Context, from, to time.Time) ([]domain.PurchasedCosts, error)
}

// Handler держит зависимости HTTP-обработчиков.
type Handler struct {
	invoices  InvoiceService
	prices    PriceService
	purchases PurchaseService
	logger    *log.Entry
}

// NewHandler создаёт обработчики REST API.
func NewHandler(invoices InvoiceService, prices PriceService, purchases PurchaseService, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.WithField("component", "rest")
	}
	return &Handler{
		invoices:  invoices,
		prices:    prices,
		purchases: purchases,
		logger:    logger,
	}
}

func (h *Handler) createOutcomeInvoice(c *gin.Context) {
	var req createInvoiceRequest
	if !bindAndValidate(c, &req) {
		return
	}

	items := make([]invoice.LineItemRequest, 0, len(req.ProductItems))
	for _, item := range req.ProductItems {
		items = append(items, invoice.LineItemRequest{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	inv, err := h.invoices.CreateOutcomeInvoice(c.Request.Context(), req.OrderID, items)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, toInvoiceResponse(inv))
}

func (h *Handler) transition(op func(context.Context, int64) (domain.Invoice, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		inv, err := op(c.Request.Context(), id)
		if err != nil {
			writeError(c, h.logger, err)
			return
		}
		c.JSON(http.StatusAccepted, toInvoiceResponse(inv))
	}
}

func (h *Handler) getInvoice(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	inv, err := h.invoices.GetInvoice(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toInvoiceResponse(inv))
}

func (h *Handler) getTimeline(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	events, err := h.invoices.Timeline(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	out := make([]timelineEventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, timelineEventResponse{Type: ev.Type, Reason: ev.Reason, Occurred: ev.Occurred})
	}
	c.JSON(http.StatusOK, out)
}

// getInvoiceByOrder отдаёт активную накладную заказа, а если её нет, то последнюю выставленную.
func (h *Handler) getInvoiceByOrder(c *gin.Context) {
	orderID, ok := pathID(c, "orderId")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	inv, err := h.invoices.GetActiveInvoiceByOrder(ctx, orderID)
	if errors.Is(err, domain.ErrInvoiceNotFound) {
		var all []domain.Invoice
		all, err = h.invoices.ListInvoicesByOrder(ctx, orderID)
		if err == nil && len(all) == 0 {
			err = domain.ErrInvoiceNotFound
		}
		if err == nil {
			inv = all[0]
		}
	}
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	if wantsProtobuf(c) {
		c.Data(http.StatusOK, wire.ContentType, wire.MarshalInvoiceDetails(inv))
		return
	}
	c.JSON(http.StatusOK, toInvoiceResponse(inv))
}

func (h *Handler) createPriceItem(c *gin.Context) {
	var req createPriceItemRequest
	if !bindAndValidate(c, &req) {
		return
	}
	item, err := h.prices.CreatePriceItem(c.Request.Context(), req.ProductID, req.Price, req.Markup)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, toPriceItemResponse(item))
}

func (h *Handler) updatePriceItem(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req updatePriceItemRequest
	if !bindAndValidate(c, &req) {
		return
	}
	item, err := h.prices.UpdatePriceItem(c.Request.Context(), id, req.Price, req.Markup)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusAccepted, toPriceItemResponse(item))
}

func (h *Handler) getPriceItem(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	item, err := h.prices.GetPriceItem(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toPriceItemResponse(item))
}

func (h *Handler) listPriceItems(c *gin.Context) {
	ids, ok := queryIDs(c, "productIds")
	if !ok {
		return
	}
	applyMarkup := false
	if raw := c.Query("markup"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "markup must be a boolean")
			return
		}
		applyMarkup = parsed
	}

	items, err := h.prices.GetPricesByProductIDs(c.Request.Context(), ids, applyMarkup)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	out := make([]priceItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toPriceItemResponse(item))
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) getSalePrices(c *gin.Context) {
	ids, ok := queryIDs(c, "productIds")
	if !ok {
		return
	}
	items, err := h.prices.GetPricesByProductIDs(c.Request.Context(), ids, true)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	if wantsProtobuf(c) {
		prices := make([]wire.SalePrice, 0, len(items))
		for _, item := range items {
			prices = append(prices, wire.SalePrice{PriceItemID: item.ID, ProductID: item.ProductID, Price: item.Price})
		}
		c.Data(http.StatusOK, wire.ContentType, wire.MarshalSalePriceList(prices))
		return
	}

	out := make([]salePriceResponse, 0, len(items))
	for _, item := range items {
		out = append(out, salePriceResponse{PriceItemID: item.ID, ProductID: item.ProductID, Price: money(item.Price)})
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) recordPurchase(c *gin.Context) {
	var req recordPurchaseRequest
	if !bindAndValidate(c, &req) {
		return
	}
	var date time.Time
	if req.DateOfPurchase != nil {
		date = *req.DateOfPurchase
	}
	entry, err := h.purchases.Record(c.Request.Context(), req.PriceItemID, req.Quantity, date)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, purchasedCostsResponse(entry))
}

func (h *Handler) queryPurchases(c *gin.Context) {
	from, err := parseDate(c.Query("dateFrom"), false)
	if err != nil {
		badRequest(c, "dateFrom: "+err.Error())
		return
	}
	to, err := parseDate(c.Query("dateTo"), true)
	if err != nil {
		badRequest(c, "dateTo: "+err.Error())
		return
	}

	entries, err := h.purchases.Query(c.Request.Context(), from, to)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	out := make([]purchasedCostsResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, purchasedCostsResponse(entry))
	}
	c.JSON(http.StatusOK, out)
}

func wantsProtobuf(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), wire.ContentType)
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

// queryIDs разбирает список вида "1,2,3".
func queryIDs(c *gin.Context, name string) ([]int64, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		badRequest(c, name+" is required")
		return nil, false
	}
	chunks := strings.Split(raw, ",")
	ids := make([]int64, 0, len(chunks))
	for _, chunk := range chunks {
		id, err := strconv.ParseInt(strings.TrimSpace(chunk), 10, 64)
		if err != nil || id <= 0 {
			badRequest(c, name+" must contain positive integers")
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

// parseDate принимает RFC3339 или YYYY-MM-DD. Для верхней границы дата без
// времени означает конец дня. Пустая строка задаёт открытую границу.
func parseDate(raw string, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if endOfDay {
			return time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC), nil
		}
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	day, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, errors.New("expected RFC3339 or YYYY-MM-DD")
	}
	if endOfDay {
		return day.Add(24*time.Hour - time.Nanosecond), nil
	}
	return day, nil
}
