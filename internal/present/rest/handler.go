package rest

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/holiman/uint256"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/totegamma/attestlend"
	"github.com/totegamma/attestlend/internal/domain"
	"github.com/totegamma/attestlend/internal/present/rest/presenter"
	"github.com/totegamma/attestlend/internal/service"
	"github.com/totegamma/attestlend/internal/usecase"
)

type Handler struct {
	config domain.Config
	ledger *usecase.LedgerUsecase
	tokens *usecase.TokenUsecase
	events usecase.EventIndex
	signal *service.SignalService
	logger *zap.Logger
}

// NewHandler wires the REST surface. events and signal may be nil, in which
// case the event history and realtime endpoints answer 503.
func NewHandler(
	config domain.Config,
	ledger *usecase.LedgerUsecase,
	tokens *usecase.TokenUsecase,
	events usecase.EventIndex,
	signal *service.SignalService,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		config: config,
		ledger: ledger,
		tokens: tokens,
		events: events,
		signal: signal,
		logger: logger,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/.well-known/attestlend", h.handleWellKnown)

	e.POST("/loans", h.handleRequestLoan)
	e.GET("/loans/:id", h.handleGetLoan)
	e.POST("/loans/:id/cancel", h.handleCancelLoan)
	e.GET("/loans/:id/offers", h.handleGetOffers)
	e.POST("/loans/:id/offers", h.handlePlaceOffer)
	e.POST("/loans/:id/accept", h.handleAcceptOffer)
	e.POST("/loans/:id/repay", h.handleRepayLoan)
	e.POST("/loans/:id/liquidate", h.handleLiquidateLoan)
	e.POST("/loans/:id/extend", h.handleExtendLoan)
	e.GET("/loans/:id/repayment", h.handleRepayment)

	e.POST("/users/credit-score", h.handleUpdateCreditScore)
	e.POST("/users/credentials/:type", h.handleAddCredential)
	e.GET("/users/:address", h.handleGetUser)
	e.GET("/users/:address/credit-score", h.handleGetCreditScore)
	e.GET("/users/:address/credentials/:type", h.handleGetCredential)

	e.GET("/epochs", h.handleEpochs)
	e.GET("/epochs/:id", h.handleEpoch)
	e.GET("/epochs/:id/committee", h.handleCommittee)

	e.POST("/tokens/:token/approve", h.handleApprove)
	e.GET("/tokens/:token/balances/:address", h.handleBalance)
	e.GET("/tokens/:token/allowances/:owner/:spender", h.handleAllowance)

	admin := e.Group("/admin")
	admin.POST("/epochs", h.handleAppendEpoch)
	admin.POST("/credential-types", h.handleSetCredentialType)
	admin.POST("/providers", h.handleSetProvider)
	admin.POST("/pause", h.handlePause)
	admin.POST("/unpause", h.handleUnpause)
	admin.POST("/owner", h.handleTransferOwnership)
	admin.POST("/tokens/:token/mint", h.handleMint)

	e.GET("/events", h.handleEvents)
	e.GET("/realtime", h.handleRealtime)
}

func (h *Handler) handleWellKnown(c echo.Context) error {
	wellknown := attestlend.WellKnownAttestlend{
		Version:      "1.0",
		Domain:       h.config.FQDN,
		Escrow:       h.config.EscrowAddress,
		LendingToken: h.config.LendingToken,
		Endpoints: map[string]attestlend.Endpoint{
			"attestlend.loan": {
				Template: "/loans/{id}",
				Method:   "GET",
			},
			"attestlend.loan.request": {
				Template: "/loans",
				Method:   "POST",
			},
			"attestlend.epochs": {
				Template: "/epochs",
				Method:   "GET",
			},
			"attestlend.committee": {
				Template: "/epochs/{id}/committee",
				Method:   "GET",
				Query:    &[]string{"identifier", "timestamp"},
			},
			"attestlend.user.creditscore": {
				Template: "/users/credit-score",
				Method:   "POST",
			},
			"attestlend.events": {
				Template: "/events",
				Method:   "GET",
				Query:    &[]string{"since", "limit"},
			},
			"attestlend.realtime": {
				Template: "/realtime",
				Method:   "GET",
			},
		},
	}
	return presenter.OK(c, wellknown)
}

// requester returns the authenticated caller. ok is false when the
// request carried no valid bearer token.
func requester(c echo.Context) (common.Address, bool) {
	address, ok := c.Request().Context().Value(domain.RequesterAddressCtxKey).(common.Address)
	return address, ok
}

func loanID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid loan id %q", c.Param("id"))
	}
	return id, nil
}

func addressParam(c echo.Context, name string) (common.Address, error) {
	return attestlend.ParseAddress(c.Param(name))
}

func parseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("amount is required")
	}
	amount, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return amount, nil
}

type requestLoanRequest struct {
	Amount           string `json:"amount"`
	InterestRate     uint64 `json:"interestRate"`
	Duration         uint64 `json:"duration"`
	CollateralToken  string `json:"collateralToken"`
	CollateralAmount string `json:"collateralAmount"`
}

func (h *Handler) handleRequestLoan(c echo.Context) error {
	ctx := c.Request().Context()
	caller, ok := requester(c)
	if !ok {
		return presenter.Unauthenticated(c)
	}

	var req requestLoanRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	collateral, err := parseAmount(req.CollateralAmount)
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	token, err := attestlend.ParseAddress(req.CollateralToken)
	if err != nil {
		return presenter.BadRequest(c, err)
	}

	loan, err := h.ledger.RequestLoan(ctx, caller, usecase.RequestLoanInput{
		Amount:           amount,
		InterestRate:     req.InterestRate,
		Duration:         req.Duration,
		CollateralToken:  token,
		CollateralAmount: collateral,
	})
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, loan)
}

func (h *Handler) handleGetLoan(c echo.Context) error {
	id, err := loanID(c)
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	loan, err := h.ledger.GetLoan(c.Request().Context(), id)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, loan)
}

func (h *Handler) handleCancelLoan(c echo.Context) error {
	return h.loanAction(c, h.ledger.CancelLoan)
}

func (h *Handler) handleRepayLoan(c echo.Context) error {
	return h.loanAction(c, h.ledger.RepayLoan)
}

func (h *Handler) handleLiquidateLoan(c echo.Context) error {
	return h.loanAction(c, h.ledger.LiquidateLoan)
}

type loanActionFunc func(ctx context.Context, caller common.Address, id uint64) error

func (h *Handler) loanAction(c echo.Context, action loanActionFunc) error {
	caller, ok := requester(c)
	if !ok {
		return presenter.Unauthenticated(c)
	}
	id, err := loanID(c)
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	if err := action(c.Request().Context(), caller, id); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleGetOffers(c echo.Context) error {
	id, err := loanID(c)
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	offers, err := h.ledger.GetOffers(c.Request().Context(), id)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, offers)
}

type placeOfferRequest struct {
	InterestRate uint64 `json:"interestRate"`
}

func (h *Handler) handlePlaceOffer(c echo.Context) error {
	caller, ok := requester(c)
	if !ok {
		return presenter.Unauthenticated(c)
	}
	id, err := loanID(c)
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	var req placeOfferRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	index, err := h.ledger.PlaceOffer(c.Request().Context(), caller, id, req.InterestRate)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"index": index})
}

type acceptOfferRequest struct {
	OfferIndex int `json:"offerIndex"`
}

func (h *Handler) handleAcceptOffer(c echo.Context) error {
	caller, ok := requester(c)
	if !ok {
		return presenter.Unauthenticated(c)
	}
	id, err := loanID(c)
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	var req acceptOfferRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	if err := h.ledger.AcceptOffer(c.Request().Context(), caller, id, req.OfferIndex); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

type extendLoanRequest struct {
	Duration uint64 `json:"duration"`
}

func (h *Handler) handleExtendLoan(c echo.Context) error {
	caller, ok := requester(c)
	if !ok {
		return presenter.Unauthenticated(c)
	}
	id, err := loanID(c)
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	var req extendLoanRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	if err := h.ledger.ExtendLoanDuration(c.Request().Context(), caller, id, req.Duration); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleRepayment(c echo.Context) error {
	id, err := loanID(c)
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	amount, err := h.ledger.CalculateRepaymentAmount(c.Request().Context(), id)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"amount": amount.Dec()})
}

func (h *Handler) handleUpdateCreditScore(c echo.Context) error {
	caller, ok := requester(c)
	if !ok {
		return presenter.Unauthenticated(c)
	}
	var proof attestlend.Proof
	if err := c.Bind(&proof); err != nil {
		return presenter.BadRequest(c, err)
	}

	score, err := h.ledger.UpdateCreditScore(c.Request().Context(), caller, proof)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"creditScore": score.Dec()})
}

func (h *Handler) handleAddCredential(c echo.Context) error {
	caller, ok := requester(c)
	if !ok {
		return presenter.Unauthenticated(c)
	}
	typeID, err := strconv.ParseUint(c.Param("type"), 10, 64)
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid credential type")
	}
	var proof attestlend.Proof
	if err := c.Bind(&proof); err != nil {
		return presenter.BadRequest(c, err)
	}

	value, err := h.ledger.AddCredential(c.Request().Context(), caller, proof, typeID)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"value": value})
}

func (h *Handler) handleGetUser(c echo.Context) error {
	address, err := addressParam(c, "address")
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	user, err := h.ledger.GetUser(c.Request().Context(), address)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, user)
}

func (h *Handler) handleGetCreditScore(c echo.Context) error {
	address, err := addressParam(c, "address")
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	score, err := h.ledger.GetCreditScore(c.Request().Context(), address)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"creditScore": score.Dec()})
}

func (h *Handler) handleGetCredential(c echo.Context) error {
	address, err := addressParam(c, "address")
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	typeID, err := strconv.ParseUint(c.Param("type"), 10, 64)
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid credential type")
	}
	value, err := h.ledger.GetCredential(c.Request().Context(), address, typeID)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"value": value})
}

func (h *Handler) handleEpochs(c echo.Context) error {
	epochs, err := h.ledger.Epochs(c.Request().Context())
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, epochs)
}

func epochID(c echo.Context) (uint32, error) {
	raw := c.Param("id")
	if raw == "current" {
		return 0, nil
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid epoch id %q", raw)
	}
	return uint32(id), nil
}

func (h *Handler) handleEpoch(c echo.Context) error {
	id, err := epochID(c)
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	epoch, err := h.ledger.Epoch(c.Request().Context(), id)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, epoch)
}

func (h *Handler) handleCommittee(c echo.Context) error {
	id, err := epochID(c)
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	identifier, err := attestlend.ParseIdentifier(c.QueryParam("identifier"))
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	timestamp, err := strconv.ParseUint(c.QueryParam("timestamp"), 10, 32)
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid timestamp parameter")
	}

	committee, err := h.ledger.Committee(c.Request().Context(), id, identifier, uint32(timestamp))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, committee)
}

type appendEpochRequest struct {
	Witnesses        []attestlend.Witness `json:"witnesses"`
	MinCommitteeSize uint8                `json:"minCommitteeSize"`
}

func (h *Handler) handleAppendEpoch(c echo.Context) error {
	caller, ok := requester(c)
	if !ok {
		return presenter.Unauthenticated(c)
	}
	var req appendEpochRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	epoch, err := h.ledger.AppendEpoch(c.Request().Context(), caller, req.Witnesses, req.MinCommitteeSize)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, epoch)
}

func (h *Handler) handleSetCredentialType(c echo.Context) error {
	caller, ok := requester(c)
	if !ok {
		return presenter.Unauthenticated(c)
	}
	var req domain.CredentialType
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	if err := h.ledger.SetCredentialType(c.Request().Context(), caller, req.ID, req.Label); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

type setProviderRequest struct {
	Provider string `json:"provider"`
	Allowed  bool   `json:"allowed"`
}

func (h *Handler) handleSetProvider(c echo.Context) error {
	caller, ok := requester(c)
	if !ok {
		return presenter.Unauthenticated(c)
	}
	var req setProviderRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	if err := h.ledger.SetProviderAllowed(c.Request().Context(), caller, req.Provider, req.Allowed); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handlePause(c echo.Context) error {
	caller, ok := requester(c)
	if !ok {
		return presenter.Unauthenticated(c)
	}
	if err := h.ledger.Pause(c.Request().Context(), caller); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleUnpause(c echo.Context) error {
	caller, ok := requester(c)
	if !ok {
		return presenter.Unauthenticated(c)
	}
	if err := h.ledger.Unpause(c.Request().Context(), caller); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

type transferOwnershipRequest struct {
	Owner string `json:"owner"`
}

func (h *Handler) handleTransferOwnership(c echo.Context) error {
	caller, ok := requester(c)
	if !ok {
		return presenter.Unauthenticated(c)
	}
	var req transferOwnershipRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}
	owner, err := attestlend.ParseAddress(req.Owner)
	if err != nil {
		return presenter.BadRequest(c, err)
	}

	if err := h.ledger.TransferOwnership(c.Request().Context(), caller, owner); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

type approveRequest struct {
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

func (h *Handler) handleApprove(c echo.Context) error {
	caller, ok := requester(c)
	if !ok {
		return presenter.Unauthenticated(c)
	}
	token, err := addressParam(c, "token")
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	var req approveRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}
	spender, err := attestlend.ParseAddress(req.Spender)
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return presenter.BadRequest(c, err)
	}

	if err := h.tokens.Approve(c.Request().Context(), caller, token, spender, amount); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

type mintRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (h *Handler) handleMint(c echo.Context) error {
	caller, ok := requester(c)
	if !ok {
		return presenter.Unauthenticated(c)
	}
	token, err := addressParam(c, "token")
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	var req mintRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}
	to, err := attestlend.ParseAddress(req.To)
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return presenter.BadRequest(c, err)
	}

	if err := h.tokens.Mint(c.Request().Context(), caller, token, to, amount); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleBalance(c echo.Context) error {
	token, err := addressParam(c, "token")
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	account, err := addressParam(c, "address")
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	balance, err := h.tokens.BalanceOf(c.Request().Context(), token, account)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"balance": balance.Dec()})
}

func (h *Handler) handleAllowance(c echo.Context) error {
	token, err := addressParam(c, "token")
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	owner, err := addressParam(c, "owner")
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	spender, err := addressParam(c, "spender")
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	allowance, err := h.tokens.Allowance(c.Request().Context(), token, owner, spender)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"allowance": allowance.Dec()})
}

func (h *Handler) handleEvents(c echo.Context) error {
	if h.events == nil {
		return presenter.Unavailable(c, "event history is not kept by this node")
	}

	var since int64
	if sinceStr := c.QueryParam("since"); sinceStr != "" {
		parsed, err := strconv.ParseInt(sinceStr, 10, 64)
		if err != nil {
			return presenter.BadRequestMessage(c, "invalid since parameter")
		}
		since = parsed
	}

	limit := 50
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			return presenter.BadRequestMessage(c, "invalid limit parameter")
		}
		limit = parsed
	}
	if limit > 500 {
		limit = 500
	}

	events, err := h.events.Since(c.Request().Context(), since, limit)
	if err != nil {
		return presenter.InternalError(c, err)
	}
	return presenter.OK(c, events)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Request struct {
	Type     string   `json:"type"`
	Prefixes []string `json:"prefixes"`
}

func (h *Handler) handleRealtime(c echo.Context) error {
	if h.signal == nil {
		return presenter.Unavailable(c, "realtime is not enabled on this node")
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("failed to upgrade websocket", zap.Error(err))
		return err
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	input := make(chan []string)
	output := make(chan attestlend.Event)

	go h.signal.Realtime(ctx, input, output)

	quit := make(chan struct{})

	go func() {
		defer close(quit)
		for {
			var req Request
			err := ws.ReadJSON(&req)
			if err != nil {
				wsErr, ok := err.(*websocket.CloseError)
				if ok {
					if !(wsErr.Code == websocket.CloseNormalClosure || wsErr.Code == websocket.CloseGoingAway) {
						h.logger.Debug("websocket closed", zap.Error(wsErr))
					}
				} else {
					h.logger.Debug("error reading message", zap.Error(err))
				}
				return
			}

			switch req.Type {
			case "listen":
				select {
				case input <- req.Prefixes:
				case <-ctx.Done():
					return
				}
				h.logger.Debug("socket subscribe", zap.Strings("prefixes", req.Prefixes))
			case "h": // heartbeat
			default:
				h.logger.Info("unknown request type", zap.String("type", req.Type))
			}
		}
	}()

	for {
		select {
		case <-quit:
			return nil
		case event := <-output:
			err := ws.WriteJSON(event)
			if err != nil {
				h.logger.Debug("error writing message", zap.Error(err))
				return nil
			}
		}
	}
}
