package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"predex.com/internal/marketmaker"
	"predex.com/internal/matching"
	"predex.com/pkg/common"
	"predex.com/pkg/logger"
	"predex.com/pkg/money"
	"predex.com/pkg/xerr"
)

type handler struct {
	orders   Orders
	mm       MarketMaker
	quotes   Quotes
	decimals int32
}

type orderBody struct {
	ID    string  `json:"id"`
	Side  string  `json:"side"`
	Kind  string  `json:"kind"`
	Price float64 `json:"price"`
	Qty   int64   `json:"qty"`
	// 以货币单位给出的总预算，缺省不限；按十进制原文解析，不过 float
	MaxCost *json.Number `json:"maxCost"`
}

func (h *handler) Healthz(c *gin.Context) {
	common.Success(c, gin.H{"status": "ok"})
}

func (h *handler) PlaceOrder(c *gin.Context) {
	id, _ := identity(c)
	var body orderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		common.Fail(c, http.StatusBadRequest, xerr.BadRequest, "invalid json body")
		return
	}
	side, err := matching.ParseSide(body.Side)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	kind := matching.Limit
	if body.Kind != "" {
		if kind, err = matching.ParseKind(body.Kind); err != nil {
			common.FailErr(c, err)
			return
		}
	}

	var opts []matching.AddOption
	if body.MaxCost != nil {
		budget, err := money.Parse(body.MaxCost.String(), h.decimals)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, xerr.BadRequest, "invalid maxCost")
			return
		}
		if budget < 0 {
			common.Fail(c, http.StatusBadRequest, xerr.BadRequest, "maxCost must not be negative")
			return
		}
		opts = append(opts, matching.WithBudget(budget, matching.MinorUnitCost(h.decimals)))
	}

	eventID := c.Param("id")
	res, err := h.orders.Submit(c, eventID, common.RequestIDFromGin(c), matching.OrderRequest{
		ID:     body.ID,
		UserID: id.UserID,
		Side:   side,
		Kind:   kind,
		Price:  body.Price,
		Qty:    body.Qty,
	}, opts...)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	logger.Debug(c, "order placed",
		zap.String("eventId", eventID),
		zap.String("orderId", res.OrderID),
		zap.Int64("filled", res.Filled),
	)
	common.Success(c, res)
}

func (h *handler) CancelOrder(c *gin.Context) {
	ok, err := h.orders.Cancel(c, c.Param("id"), common.RequestIDFromGin(c), c.Param("orderId"))
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Success(c, gin.H{"cancelled": ok})
}

func (h *handler) Depth(c *gin.Context) {
	eventID := c.Param("id")
	d, err := h.orders.Depth(c, eventID)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Success(c, gin.H{"eventId": eventID, "depth": d})
}

func (h *handler) Quote(c *gin.Context) {
	q, err := h.mm.GetQuote(c, c.Param("id"))
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Success(c, q)
}

func (h *handler) Seed(c *gin.Context) {
	var o marketmaker.Overrides
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&o); err != nil {
			common.Fail(c, http.StatusBadRequest, xerr.BadRequest, "invalid json body")
			return
		}
	}
	st, err := h.mm.Seed(c, c.Param("id"), &o)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	q := st.Quote()
	if h.quotes != nil {
		h.quotes.PublishQuote(c, q)
	}
	common.Success(c, q)
}

func (h *handler) Reset(c *gin.Context) {
	eventID := c.Param("id")
	if err := h.mm.Reset(c, eventID); err != nil {
		common.FailErr(c, err)
		return
	}
	if h.quotes != nil {
		h.quotes.ForgetQuote(c, eventID)
	}
	common.Success(c, gin.H{"eventId": eventID, "reset": true})
}
