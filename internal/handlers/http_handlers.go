package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lottery-engine/internal/ledger"
	"lottery-engine/internal/services"
)

const (
	accountHeader   = "X-Account"
	requestIDHeader = "X-Request-ID"
	accountKey      = "account"
	defaultLimit    = 50
	maxLimit        = 500
)

var errBadAmount = errors.New("amount must be a decimal integer")

// HTTPHandler holds the dependencies for the HTTP handlers, like the lottery service.
type HTTPHandler struct {
	service *services.LotteryService
}

// NewHTTPHandler creates a new HTTPHandler.
func NewHTTPHandler(service *services.LotteryService) *HTTPHandler {
	return &HTTPHandler{service: service}
}

// RegisterRoutes registers all the application routes.
func (h *HTTPHandler) RegisterRoutes(router *gin.Engine) {
	router.Use(RequestIDMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/status", h.GetStatus)
	router.GET("/quickpick", h.GetQuickPick)
	router.GET("/draws/current", h.GetCurrentDraw)
	router.GET("/draws/:id", h.GetDraw)
	router.GET("/draws/:id/tickets", h.GetDrawTickets)
	router.GET("/draws/:id/winners", h.GetDrawWinners)
	router.GET("/draws/:id/events", h.GetDrawEvents)
	router.GET("/tickets/:id", h.GetTicket)
	router.GET("/players/:owner/tickets", h.GetPlayerTickets)
	router.GET("/players/:owner/totals", h.GetPlayerTotals)
	router.GET("/events", h.GetEvents)

	account := router.Group("/")
	account.Use(AccountMiddleware())
	account.POST("/tickets", h.PurchaseTickets)
	account.POST("/claims", h.ClaimPrizes)
	account.POST("/donations", h.Donate)

	admin := router.Group("/admin")
	admin.Use(AccountMiddleware())
	admin.GET("/payouts", h.GetPayouts)
	admin.POST("/pause", h.Pause)
	admin.POST("/unpause", h.Unpause)
	admin.POST("/draw", h.ExecuteDraw)
	admin.POST("/withdraw", h.WithdrawExcess)
	admin.POST("/upgrade", h.AuthorizeUpgrade)
}

// RequestIDMiddleware tags every response with a request id.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// AccountMiddleware requires the caller's account in the X-Account header.
func AccountMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		account := c.GetHeader(accountHeader)
		if account == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "X-Account header is required"})
			return
		}
		c.Set(accountKey, account)
		c.Next()
	}
}

func caller(c *gin.Context) string {
	return c.GetString(accountKey)
}

// statusFor maps an error to an HTTP status by its class.
func statusFor(err error) int {
	if errors.Is(err, ledger.ErrTicketNotFound) || errors.Is(err, ledger.ErrDrawNotFound) {
		return http.StatusNotFound
	}
	switch ledger.KindOf(err) {
	case ledger.KindInputValidation:
		return http.StatusBadRequest
	case ledger.KindAuthorization:
		return http.StatusForbidden
	case ledger.KindStateConflict:
		return http.StatusConflict
	case ledger.KindTransfer:
		return http.StatusBadGateway
	case ledger.KindPaused:
		return http.StatusLocked
	default:
		return http.StatusInternalServerError
	}
}

func (h *HTTPHandler) fail(c *gin.Context, err error) {
	kind := ledger.KindOf(err)
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	} else {
		logger.Infof("%s %s rejected (%s): %v", c.Request.Method, c.FullPath(), kind, err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": kind.String()})
}

func badRequest(c *gin.Context, err error) {
	logger.Infof("%s %s bad request: %v", c.Request.Method, c.FullPath(), err)
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": ledger.KindInputValidation.String()})
}

func parseID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, errors.New("id must be a positive integer"))
		return 0, false
	}
	return id, true
}

func parseAmount(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, errBadAmount
	}
	return v, nil
}

func parseLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil || limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// --- Player operations ---

type purchaseRequest struct {
	Tickets []ledger.TicketRequest `json:"tickets" binding:"required"`
	Payment string                 `json:"payment" binding:"required"`
}

// PurchaseTickets buys a batch of tickets for the caller.
func (h *HTTPHandler) PurchaseTickets(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	payment, err := parseAmount(req.Payment)
	if err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.service.Purchase(c.Request.Context(), caller(c), req.Tickets, payment)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"drawId":      res.DrawID,
		"ticketIds":   res.TicketIDs,
		"fee":         &res.Fee,
		"settledDraw": res.Settled,
	})
}

type claimRequest struct {
	TicketIDs []uint64 `json:"ticketIds" binding:"required"`
}

// ClaimPrizes pays the caller's winning tickets.
func (h *HTTPHandler) ClaimPrizes(c *gin.Context) {
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.service.Claim(c.Request.Context(), caller(c), req.TicketIDs)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticketIds": res.TicketIDs, "total": &res.Total})
}

type amountRequest struct {
	Amount string `json:"amount" binding:"required"`
}

func (h *HTTPHandler) Donate(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := h.service.Donate(c.Request.Context(), caller(c), amount); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"amount": amount})
}

// --- Admin operations ---

func (h *HTTPHandler) Pause(c *gin.Context) {
	if err := h.service.Pause(c.Request.Context(), caller(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

func (h *HTTPHandler) Unpause(c *gin.Context) {
	if err := h.service.Unpause(c.Request.Context(), caller(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": false})
}

// ExecuteDraw settles the pending draw once its deadline has passed.
func (h *HTTPHandler) ExecuteDraw(c *gin.Context) {
	d, err := h.service.ExecuteDraw(c.Request.Context(), caller(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, &d)
}

func (h *HTTPHandler) WithdrawExcess(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := h.service.WithdrawExcess(c.Request.Context(), caller(c), amount); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawn": amount})
}

type upgradeRequest struct {
	Version uint64 `json:"version" binding:"required"`
}

func (h *HTTPHandler) AuthorizeUpgrade(c *gin.Context) {
	var req upgradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.service.AuthorizeUpgrade(c.Request.Context(), caller(c), req.Version); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schemaVersion": req.Version})
}

// GetPayouts lists the payout outbox. Only privileged accounts may read it.
func (h *HTTPHandler) GetPayouts(c *gin.Context) {
	if !h.service.IsPrivileged(caller(c)) {
		h.fail(c, ledger.ErrNotPrivileged)
		return
	}
	payouts, err := h.service.Payouts(c.Request.Context(), parseLimit(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payouts": payouts})
}

// --- Reads ---

func (h *HTTPHandler) GetStatus(c *gin.Context) {
	summary := h.service.Summary()
	c.JSON(http.StatusOK, &summary)
}

func (h *HTTPHandler) GetQuickPick(c *gin.Context) {
	main, bonus, err := h.service.QuickPick(c.GetHeader(accountHeader))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ledger.TicketRequest{MainNumbers: main[:], BonusNumber: bonus})
}

func (h *HTTPHandler) GetCurrentDraw(c *gin.Context) {
	d := h.service.CurrentDraw()
	c.JSON(http.StatusOK, &d)
}

func (h *HTTPHandler) GetDraw(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	d, err := h.service.Draw(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, &d)
}

func (h *HTTPHandler) GetDrawTickets(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	tickets, err := h.service.TicketsByDraw(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tickets": tickets})
}

func (h *HTTPHandler) GetDrawWinners(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	counts, err := h.service.WinnerCounts(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"drawId": id, "winnerCounts": counts})
}

func (h *HTTPHandler) GetDrawEvents(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	evs, err := h.service.Events(c.Request.Context(), id, parseLimit(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": evs})
}

func (h *HTTPHandler) GetEvents(c *gin.Context) {
	evs, err := h.service.Events(c.Request.Context(), 0, parseLimit(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": evs})
}

func (h *HTTPHandler) GetTicket(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	t, err := h.service.Ticket(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, &t)
}

func (h *HTTPHandler) GetPlayerTickets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tickets": h.service.TicketsByOwner(c.Param("owner"))})
}

func (h *HTTPHandler) GetPlayerTotals(c *gin.Context) {
	totals := h.service.PlayerTotals(c.Param("owner"))
	c.JSON(http.StatusOK, &totals)
}
