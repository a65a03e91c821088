package httpgin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kirinyoku/tix-cinema/internal/domain"
	redisrepo "github.com/kirinyoku/tix-cinema/internal/repository/redis"
	"github.com/kirinyoku/tix-cinema/internal/service"
	"github.com/kirinyoku/tix-cinema/internal/service/admin"
	"github.com/kirinyoku/tix-cinema/internal/service/query"
	"github.com/kirinyoku/tix-cinema/internal/service/reservation"
	"github.com/kirinyoku/tix-cinema/internal/service/tickets"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type RouterConfig struct {
	// JWTSecret enables bearer authentication. Empty trusts the X-User-ID
	// and X-User-Role headers; config only allows that with AUTH_TRUST_HEADERS.
	JWTSecret string
	// Idem is optional.
	Idem *redisrepo.IdempotencyStore
	// Hub is optional; without it the seat stream answers 501.
	Hub *SeatHub
	// AllowOrigins lists CORS origins. Empty allows any.
	AllowOrigins []string
}

type handler struct {
	svcs   *service.Services
	idem   *redisrepo.IdempotencyStore
	hub    *SeatHub
	logger *slog.Logger
}

func NewRouter(
	svcs *service.Services,
	cfg RouterConfig,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS(cfg.AllowOrigins))
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	h := &handler{svcs: svcs, idem: cfg.Idem, hub: cfg.Hub, logger: logger}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Public API
	r.GET("/sessions/:id", handleGetSession(h))
	r.GET("/sessions/:id/seats", handleGetSeatMap(h))
	r.GET("/sessions/:id/seats/stream", handleSeatStream(h))
	r.GET("/promo-codes/:code", handleCheckPromoCode(h))

	user := r.Group("/", Auth(cfg.JWTSecret))
	{
		user.POST("/sessions/:id/holds", handlePlaceHold(h))
		user.DELETE("/sessions/:id/holds/:seat", handleCancelHold(h))
		user.POST("/sessions/:id/purchases", handlePurchase(h))

		user.GET("/me/tickets", handleListMyTickets(h))
		user.GET("/me/holds", handleListMyHolds(h))
		user.GET("/tickets/:id", handleGetTicket(h))
	}

	// Staff and admin API
	staff := r.Group("/", Auth(cfg.JWTSecret), RequireAdmin())
	{
		staff.POST("/tickets/:id/redeem", handleRedeemTicket(h))

		staff.POST("/admin/halls", handleCreateHall(h))
		staff.POST("/admin/movies", handleCreateMovie(h))
		staff.POST("/admin/sessions", handleCreateSession(h))
		staff.PATCH("/admin/sessions/:id", handleUpdateSession(h))
		staff.POST("/admin/promo-codes", handleCreatePromoCode(h))
		staff.POST("/admin/holds/sweep", handleSweepHolds(h))
	}

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  Get session
// @Param    id  path  int  true  "Session ID"
// @Success  200  {object}  domain.Session
// @Failure  404  {object}  ErrorResponse
// @Router   /sessions/{id} [get]
func handleGetSession(h *handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		s, err := h.svcs.Query.GetSession(c.Request.Context(), sessionID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeCached(c, http.StatusOK, s, sessionCache)
	}
}

// @Summary  Get seat map
// @Param    id  path  int  true  "Session ID"
// @Success  200  {object}  SeatMapResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /sessions/{id}/seats [get]
func handleGetSeatMap(h *handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		seats, err := h.svcs.Reservation.GetSeatMap(c.Request.Context(), sessionID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeCached(c, http.StatusOK, SeatMapResponse{
			SessionID: sessionID,
			Capacity:  len(seats),
			Available: seats.Available(),
			Seats:     seats,
		}, seatMapCache)
	}
}

// @Summary  Check promo code
// @Param    code  path  string  true  "Promo code"
// @Success  200  {object}  query.PromoCheck
// @Failure  404  {object}  ErrorResponse
// @Router   /promo-codes/{code} [get]
func handleCheckPromoCode(h *handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := h.svcs.Query.CheckPromoCode(c.Request.Context(), c.Param("code"))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// @Summary  Place hold (idempotent)
// @Param    id  path  int  true  "Session ID"
// @Param    req body  PlaceHoldRequest true "payload"
// @Header   201 {string} Idempotency-Key "echo"
// @Success  201 {object} HoldResponse
// @Failure  400 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "seat unavailable / session not bookable / idem in progress"
// @Failure  422 {object} ErrorResponse "idempotency key reused with a different request"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /sessions/{id}/holds [post]
func handlePlaceHold(h *handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req PlaceHoldRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		h.idempotent(c, "holds", sessionID, req, func() (any, error) {
			hold, err := h.svcs.Reservation.PlaceHold(
				c.Request.Context(),
				sessionID,
				userID(c),
				req.Seat,
			)
			if err != nil {
				return nil, err
			}
			return newHoldResponse(hold), nil
		})
	}
}

// @Summary  Cancel own hold
// @Param    id    path  int  true  "Session ID"
// @Param    seat  path  int  true  "Seat index"
// @Success  204
// @Failure  403 {object} ErrorResponse "hold belongs to another user"
// @Failure  404 {object} ErrorResponse
// @Router   /sessions/{id}/holds/{seat} [delete]
func handleCancelHold(h *handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		seat, err := strconv.Atoi(c.Param("seat"))
		if err != nil {
			badRequest(c, "invalid seat")
			return
		}
		if err := h.svcs.Reservation.CancelHold(
			c.Request.Context(),
			sessionID,
			userID(c),
			seat,
		); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Purchase seat (converts own live hold, or buys directly; idempotent)
// @Param    id  path  int  true  "Session ID"
// @Param    req body  PurchaseRequest true "payload"
// @Success  201 {object} TicketResponse
// @Failure  404 {object} ErrorResponse "hold not found"
// @Failure  409 {object} ErrorResponse "seat unavailable"
// @Failure  410 {object} ErrorResponse "hold expired"
// @Failure  422 {object} ErrorResponse "promo code invalid / idempotency key reused"
// @Router   /sessions/{id}/purchases [post]
func handlePurchase(h *handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req PurchaseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		var opts []reservation.PurchaseOption
		if code := strings.TrimSpace(req.PromoCode); code != "" {
			opts = append(opts, reservation.WithPromoCode(code))
		}

		h.idempotent(c, "purchases", sessionID, req, func() (any, error) {
			t, err := h.svcs.Reservation.ConfirmPurchase(
				c.Request.Context(),
				sessionID,
				userID(c),
				req.Seat,
				opts...,
			)
			if err != nil {
				return nil, err
			}
			return newTicketResponse(t), nil
		})
	}
}

// @Summary  List my tickets
// @Success  200 {array} TicketResponse
// @Router   /me/tickets [get]
func handleListMyTickets(h *handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		ts, err := h.svcs.Query.ListUserTickets(c.Request.Context(), userID(c))
		if err != nil {
			respondErr(c, err)
			return
		}
		out := make([]TicketResponse, 0, len(ts))
		for i := range ts {
			out = append(out, newTicketResponse(&ts[i]))
		}
		c.JSON(http.StatusOK, out)
	}
}

// @Summary  List my live holds
// @Success  200 {array} HoldResponse
// @Router   /me/holds [get]
func handleListMyHolds(h *handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		hs, err := h.svcs.Query.ListUserHolds(c.Request.Context(), userID(c))
		if err != nil {
			respondErr(c, err)
			return
		}
		out := make([]HoldResponse, 0, len(hs))
		for i := range hs {
			out = append(out, newHoldResponse(&hs[i]))
		}
		c.JSON(http.StatusOK, out)
	}
}

// @Summary  Get my ticket
// @Param    id  path  string  true  "Ticket ID (uuid)"
// @Success  200 {object} TicketResponse
// @Failure  404 {object} ErrorResponse
// @Router   /tickets/{id} [get]
func handleGetTicket(h *handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		t, err := h.svcs.Tickets.GetTicket(c.Request.Context(), id, userID(c))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, newTicketResponse(t))
	}
}

// @Summary  Redeem ticket at the entrance
// @Param    id  path  string  true  "Ticket ID (uuid)"
// @Success  200 {object} TicketResponse
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "already used"
// @Router   /tickets/{id}/redeem [post]
func handleRedeemTicket(h *handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		t, err := h.svcs.Tickets.Redeem(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, newTicketResponse(t))
	}
}

// @Summary  Create hall
// @Param    req body  CreateHallRequest true "payload"
// @Success  201 {object} CreatedResponse
// @Failure  409 {object} ErrorResponse
// @Router   /admin/halls [post]
func handleCreateHall(h *handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateHallRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		id, err := h.svcs.Admin.CreateHall(c.Request.Context(), req.Name, req.Capacity)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreatedResponse{ID: id})
	}
}

// @Summary  Create movie
// @Param    req body  CreateMovieRequest true "payload"
// @Success  201 {object} CreatedResponse
// @Router   /admin/movies [post]
func handleCreateMovie(h *handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateMovieRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		id, err := h.svcs.Admin.CreateMovie(c.Request.Context(), req.Title, req.DurationMin)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreatedResponse{ID: id})
	}
}

// @Summary  Create session
// @Param    req body  CreateSessionRequest true "payload"
// @Success  201 {object} CreatedResponse
// @Failure  404 {object} ErrorResponse "movie or hall does not exist"
// @Router   /admin/sessions [post]
func handleCreateSession(h *handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		starts, err := parseRFC3339(req.StartsAt)
		if err != nil {
			badRequest(c, "invalid starts_at (RFC3339)")
			return
		}
		id, err := h.svcs.Admin.CreateSession(
			c.Request.Context(),
			req.MovieID,
			req.HallID,
			starts,
			req.PriceCents,
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreatedResponse{ID: id})
	}
}

// @Summary  Open or close a session for booking
// @Param    id  path  int  true  "Session ID"
// @Param    req body  UpdateSessionRequest true "payload"
// @Success  204
// @Failure  404 {object} ErrorResponse
// @Router   /admin/sessions/{id} [patch]
func handleUpdateSession(h *handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req UpdateSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		if err := h.svcs.Admin.SetSessionActive(c.Request.Context(), sessionID, *req.IsActive); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Create promo code
// @Param    req body  CreatePromoCodeRequest true "payload"
// @Success  201
// @Failure  409 {object} ErrorResponse
// @Router   /admin/promo-codes [post]
func handleCreatePromoCode(h *handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreatePromoCodeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		starts, err := parseRFC3339(req.StartsAt)
		if err != nil {
			badRequest(c, "invalid starts_at (RFC3339)")
			return
		}
		expires, err := parseRFC3339(req.ExpiresAt)
		if err != nil {
			badRequest(c, "invalid expires_at (RFC3339)")
			return
		}
		active := true
		if req.IsActive != nil {
			active = *req.IsActive
		}
		if err := h.svcs.Admin.CreatePromoCode(c.Request.Context(), domain.PromoCode{
			Code:            req.Code,
			DiscountPercent: req.DiscountPercent,
			IsActive:        active,
			StartsAt:        starts,
			ExpiresAt:       expires,
		}); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusCreated)
	}
}

// @Summary  Release expired holds now
// @Param    req body  SweepRequest false "optional session scope"
// @Success  200 {object} SweepResponse
// @Router   /admin/holds/sweep [post]
func handleSweepHolds(h *handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SweepRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				badRequest(c, err.Error())
				return
			}
		}
		n, err := h.svcs.Reservation.SweepExpiredHolds(c.Request.Context(), req.SessionID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, SweepResponse{Released: n})
	}
}

// --- Helpers ---

// idempotent runs fn and answers 201 with its result. With an
// Idempotency-Key header the first successful result is stored and replayed
// for repeats of the same key by the same user on the same session. A key
// reused with a different req is rejected with 422. If the store is
// unreachable the request runs without replay protection.
func (h *handler) idempotent(c *gin.Context, action string, sessionID int64, req any, fn func() (any, error)) {
	idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if h.idem == nil || idemKey == "" {
		h.created(c, fn)
		return
	}

	ctx := c.Request.Context()
	storageKey := redisrepo.KeyIdem(action, sessionID, userID(c), idemKey)

	body, err := json.Marshal(req)
	if err != nil {
		respondErr(c, err)
		return
	}
	fingerprint := redisrepo.Fingerprint(body)

	payload, started, err := h.idem.Begin(ctx, storageKey, fingerprint, 60*time.Second)
	switch {
	case errors.Is(err, redisrepo.ErrIdempotencyInProgress):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
		return
	case errors.Is(err, redisrepo.ErrIdempotencyKeyReused):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "idempotency key reused with a different request"})
		return
	case err != nil:
		h.logger.Warn("idempotency store unavailable", slog.Any("error", err))
		h.created(c, fn)
		return
	case !started:
		replay(c, idemKey, payload)
		return
	}

	resp, err := fn()
	if err != nil {
		_ = h.idem.Abort(ctx, storageKey)
		respondErr(c, err)
		return
	}

	b, err := json.Marshal(resp)
	if err != nil {
		_ = h.idem.Abort(ctx, storageKey)
		respondErr(c, err)
		return
	}

	if err := h.idem.Complete(ctx, storageKey, fingerprint, string(b)); err != nil {
		h.logger.Warn("save idempotent result", slog.String("key", storageKey), slog.Any("error", err))
	}

	c.Header("Idempotency-Key", idemKey)
	c.Data(http.StatusCreated, "application/json; charset=utf-8", b)
}

func (h *handler) created(c *gin.Context, fn func() (any, error)) {
	resp, err := fn()
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func replay(c *gin.Context, idemKey, payload string) {
	c.Header("Idempotency-Key", idemKey)
	c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
}

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	s := c.Param(name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	v, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return v, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

type errMapping struct {
	target error
	status int
	msg    string
}

var errMappings = []errMapping{
	// reservation service
	{reservation.ErrSessionNotFound, http.StatusNotFound, "session not found"},
	{reservation.ErrSessionNotBookable, http.StatusConflict, "session is not bookable"},
	{reservation.ErrSeatOutOfRange, http.StatusBadRequest, "seat is out of range"},
	{reservation.ErrSeatUnavailable, http.StatusConflict, "seat is unavailable"},
	{reservation.ErrHoldNotFound, http.StatusNotFound, "hold not found"},
	{reservation.ErrHoldExpired, http.StatusGone, "hold expired"},
	{reservation.ErrNotOwner, http.StatusForbidden, "hold belongs to another user"},
	{reservation.ErrPromoInvalid, http.StatusUnprocessableEntity, "promo code is invalid"},
	{reservation.ErrLedgerUnavailable, http.StatusServiceUnavailable, "ledger unavailable, retry later"},
	// query service
	{query.ErrSessionNotFound, http.StatusNotFound, "session not found"},
	{query.ErrPromoNotFound, http.StatusNotFound, "promo code not found"},
	// tickets service
	{tickets.ErrTicketNotFound, http.StatusNotFound, "ticket not found"},
	{tickets.ErrTicketAlreadyUsed, http.StatusConflict, "ticket already used"},
	// admin service
	{admin.ErrInvalidInput, http.StatusBadRequest, "invalid input"},
	{admin.ErrHallConflict, http.StatusConflict, "hall conflict"},
	{admin.ErrPromoConflict, http.StatusConflict, "promo code conflict"},
	{admin.ErrCatalogReference, http.StatusNotFound, "movie or hall does not exist"},
	{admin.ErrSessionNotFound, http.StatusNotFound, "session not found"},
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	if errors.Is(err, reservation.ErrRateLimited) {
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(err)))
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limited"})
		return
	}

	for _, m := range errMappings {
		if errors.Is(err, m.target) {
			if m.status >= http.StatusInternalServerError {
				_ = c.Error(err)
			}
			c.JSON(m.status, ErrorResponse{Error: m.msg})
			return
		}
	}

	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

// retryAfterSeconds rounds the limiter's wait up to whole seconds, at least 1.
func retryAfterSeconds(err error) int {
	var rl *reservation.RateLimitError
	if !errors.As(err, &rl) {
		return 1
	}
	return max(1, int(math.Ceil(rl.RetryAfter.Seconds())))
}
