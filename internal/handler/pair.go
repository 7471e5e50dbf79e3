package handler

import (
	"net/http"
	"time"

	"github.com/efreitasn/pairexchange/internal/domain"
	"github.com/efreitasn/pairexchange/internal/service"
	"github.com/efreitasn/pairexchange/internal/settlement"
)

// PairHandler handles HTTP requests for asset pair endpoints, including
// settlement triggers and the trade feed.
type PairHandler struct {
	pairs    *service.PairService
	exchange *service.ExchangeService
	scale    int32
}

// NewPairHandler creates a new PairHandler.
func NewPairHandler(pairs *service.PairService, exchange *service.ExchangeService, scale int32) *PairHandler {
	return &PairHandler{pairs: pairs, exchange: exchange, scale: scale}
}

// createPairRequest is the JSON request body for POST /pairs.
type createPairRequest struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
}

type pairResponse struct {
	PairID    int64  `json:"pair_id"`
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
	Symbol    string `json:"symbol"`
	CreatedAt string `json:"created_at"`
}

type tradeResponse struct {
	TradeID     int64  `json:"trade_id"`
	PairID      int64  `json:"pair_id"`
	BuyOrderID  int64  `json:"buy_order_id"`
	SellOrderID int64  `json:"sell_order_id"`
	Quantity    int64  `json:"quantity"`
	Price       string `json:"price"`
	Overpayment string `json:"overpayment"`
	TakerSide   string `json:"taker_side"`
	TradeAt     string `json:"trade_at"`
}

type tradeListResponse struct {
	Trades []tradeResponse `json:"trades"`
}

// settlementResponse is the JSON response for POST /pairs/{pair_id}/settle.
type settlementResponse struct {
	PairID     int64           `json:"pair_id"`
	LeaseID    string          `json:"lease_id"`
	TradeAt    string          `json:"trade_at"`
	Trades     []tradeResponse `json:"trades"`
	StartedAt  string          `json:"started_at"`
	FinishedAt string          `json:"finished_at"`
}

// Create handles POST /pairs. It answers 201 when the pair is new and 200
// when it already existed in either orientation.
func (h *PairHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPairRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	pair, created, err := h.pairs.GetOrCreatePair(r.Context(), req.Primary, req.Secondary)
	if err != nil {
		mapError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	WriteJSON(w, status, buildPairResponse(pair))
}

// List handles GET /pairs.
func (h *PairHandler) List(w http.ResponseWriter, r *http.Request) {
	pairs, err := h.pairs.ListPairs(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}

	resp := make([]pairResponse, len(pairs))
	for i, p := range pairs {
		resp[i] = buildPairResponse(p)
	}
	WriteJSON(w, http.StatusOK, map[string]any{"pairs": resp})
}

// Get handles GET /pairs/{pair_id}.
func (h *PairHandler) Get(w http.ResponseWriter, r *http.Request) {
	pairID, ok := pathID(w, r, "pair_id")
	if !ok {
		return
	}

	pair, err := h.pairs.ResolvePair(r.Context(), pairID)
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, buildPairResponse(pair))
}

// Settle handles POST /pairs/{pair_id}/settle.
func (h *PairHandler) Settle(w http.ResponseWriter, r *http.Request) {
	pairID, ok := pathID(w, r, "pair_id")
	if !ok {
		return
	}

	report, err := h.exchange.Settle(r.Context(), pairID)
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, settlementResponse{
		PairID:     report.PairID,
		LeaseID:    report.LeaseID,
		TradeAt:    report.TradeAt.UTC().Format(timeLayout),
		Trades:     h.buildTradeResponses(report),
		StartedAt:  report.Started.UTC().Format(timeLayout),
		FinishedAt: report.Finished.UTC().Format(timeLayout),
	})
}

// ListTrades handles GET /pairs/{pair_id}/trades?since=RFC3339.
func (h *PairHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	pairID, ok := pathID(w, r, "pair_id")
	if !ok {
		return
	}

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "since must be a valid RFC 3339 timestamp")
			return
		}
		since = t
	}

	resp := tradeListResponse{Trades: []tradeResponse{}}
	for t, err := range h.exchange.ListTrades(r.Context(), pairID, since) {
		if err != nil {
			mapError(w, err)
			return
		}
		resp.Trades = append(resp.Trades, h.buildTradeResponse(t))
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (h *PairHandler) buildTradeResponses(report *settlement.Report) []tradeResponse {
	result := make([]tradeResponse, len(report.Trades))
	for i, t := range report.Trades {
		result[i] = h.buildTradeResponse(t)
	}
	return result
}

func (h *PairHandler) buildTradeResponse(t *domain.Trade) tradeResponse {
	return tradeResponse{
		TradeID:     t.ID,
		PairID:      t.PairID,
		BuyOrderID:  t.BuyOrderID,
		SellOrderID: t.SellOrderID,
		Quantity:    t.Quantity,
		Price:       domain.FormatAmount(t.Price, h.scale),
		Overpayment: domain.FormatAmount(t.Overpayment, h.scale),
		TakerSide:   string(t.TakerSide),
		TradeAt:     t.TradeAt.UTC().Format(timeLayout),
	}
}

func buildPairResponse(p *domain.AssetPair) pairResponse {
	return pairResponse{
		PairID:    p.ID,
		Primary:   p.Primary,
		Secondary: p.Secondary,
		Symbol:    p.Symbol(),
		CreatedAt: p.CreatedAt.UTC().Format(timeLayout),
	}
}
