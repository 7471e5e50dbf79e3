package handler

import (
	"net/http"

	"github.com/efreitasn/pairexchange/internal/domain"
	"github.com/efreitasn/pairexchange/internal/service"
	"github.com/go-chi/chi/v5"
)

// AccountHandler handles deposits and balance queries. Amounts are integer
// minor units of the currency.
type AccountHandler struct {
	accounts *service.AccountService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accounts *service.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

type depositRequest struct {
	Currency string `json:"currency"`
	Amount   int64  `json:"amount"`
}

type balanceResponse struct {
	Currency  string `json:"currency"`
	Available int64  `json:"available"`
	Reserved  int64  `json:"reserved"`
	Total     int64  `json:"total"`
}

type balancesResponse struct {
	UserID   string            `json:"user_id"`
	Balances []balanceResponse `json:"balances"`
}

// Deposit handles POST /accounts/{user_id}/deposits.
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	var req depositRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	balance, err := h.accounts.Deposit(r.Context(), userID, req.Currency, req.Amount)
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, buildBalanceResponse(balance))
}

// Balances handles GET /accounts/{user_id}/balances. Only the account owner
// may read it.
func (h *AccountHandler) Balances(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	userID := chi.URLParam(r, "user_id")
	if user != userID {
		WriteError(w, http.StatusForbidden, "forbidden", "balances are visible to their owner only")
		return
	}

	balances, err := h.accounts.Balances(r.Context(), userID)
	if err != nil {
		mapError(w, err)
		return
	}

	resp := balancesResponse{
		UserID:   userID,
		Balances: make([]balanceResponse, len(balances)),
	}
	for i, b := range balances {
		resp.Balances[i] = buildBalanceResponse(b)
	}
	WriteJSON(w, http.StatusOK, resp)
}

func buildBalanceResponse(b domain.Balance) balanceResponse {
	return balanceResponse{
		Currency:  b.Currency,
		Available: b.Available,
		Reserved:  b.Reserved,
		Total:     b.Total(),
	}
}
