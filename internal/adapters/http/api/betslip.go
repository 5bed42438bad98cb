package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/okian/slipsync/internal/domain/model"
	"github.com/okian/slipsync/internal/domain/types"
	"github.com/okian/slipsync/internal/services/betslip"
)

const maxBodyBytes = 1 << 16

// BetslipHandler handles the betslip routes.
type BetslipHandler struct {
	slip    Betslip
	catalog Catalog
}

// NewBetslipHandler creates a new betslip handler.
func NewBetslipHandler(slip Betslip, catalog Catalog) *BetslipHandler {
	return &BetslipHandler{slip: slip, catalog: catalog}
}

// HandleGet handles GET /betslip.
func (h *BetslipHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	bets := h.slip.Selections(h.catalog)
	if bets == nil {
		bets = []model.Selection{}
	}
	writeJSON(w, http.StatusOK, types.Betslip{Type: h.slip.CurrentType().String(), Bets: bets})
}

// HandleType handles GET /betslip/type.
func (h *BetslipHandler) HandleType(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.Mutation{Type: h.slip.CurrentType().String()})
}

// HandleExists handles GET /betslip/bets/{id}.
func (h *BetslipHandler) HandleExists(w http.ResponseWriter, r *http.Request) {
	const op = "api.bet_exists"
	id := chi.URLParam(r, "id")
	if !model.ValidBetID(id) {
		writeKind(w, WrapKind(op, ErrBadRequest, model.ErrInvalidBetID))
		return
	}
	present := h.slip.IsUserBetExisting(id)
	status := http.StatusOK
	if !present {
		status = http.StatusNotFound
	}
	writeJSON(w, status, types.Mutation{ID: id, Present: present, Type: h.slip.CurrentType().String()})
}

// HandleAdd handles POST /betslip/bets/{id}.
func (h *BetslipHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	changed, err := h.slip.AddUserBet(r.Context(), id)
	if err != nil {
		writeKind(w, WrapKind("api.add_bet", ErrBadRequest, err))
		return
	}
	status := http.StatusOK
	if changed {
		status = http.StatusCreated
	}
	writeJSON(w, status, h.mutation(id, changed, true))
}

// HandleRemove handles DELETE /betslip/bets/{id}.
func (h *BetslipHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	changed, err := h.slip.RemoveBet(r.Context(), id)
	if err != nil {
		writeKind(w, WrapKind("api.remove_bet", ErrBadRequest, err))
		return
	}
	writeJSON(w, http.StatusOK, h.mutation(id, changed, false))
}

// HandleToggle handles POST /betslip/bets/{id}/toggle.
func (h *BetslipHandler) HandleToggle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	present, err := h.slip.ToggleUserBet(r.Context(), id)
	if err != nil {
		writeKind(w, WrapKind("api.toggle_bet", ErrBadRequest, err))
		return
	}
	writeJSON(w, http.StatusOK, h.mutation(id, true, present))
}

// HandleClear handles DELETE /betslip.
func (h *BetslipHandler) HandleClear(w http.ResponseWriter, r *http.Request) {
	changed := h.slip.Clear(r.Context())
	writeJSON(w, http.StatusOK, h.mutation("", changed, false))
}

// HandlePayout handles POST /betslip/payout.
func (h *BetslipHandler) HandlePayout(w http.ResponseWriter, r *http.Request) {
	const op = "api.payout"
	var req types.PayoutRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeKind(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	stake, err := decimal.NewFromString(req.Stake)
	if err != nil {
		writeKind(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if !stake.IsPositive() {
		writeKind(w, WrapKind(op, ErrBadRequest, errors.New("stake must be positive")))
		return
	}
	if !h.catalog.Loaded() {
		writeKind(w, NewKind(op, ErrUnavailable))
		return
	}
	q, err := h.slip.Quote(h.catalog, stake)
	switch {
	case errors.Is(err, betslip.ErrEmptyBetslip):
		writeKind(w, WrapKind(op, ErrConflict, err))
		return
	case errors.Is(err, betslip.ErrUnresolvedBet):
		writeKind(w, WrapKind(op, ErrUnresolvable, err))
		return
	case err != nil:
		writeKind(w, err)
		return
	}
	odds := make([]string, len(q.Odds))
	for i, o := range q.Odds {
		odds[i] = o.String()
	}
	writeJSON(w, http.StatusOK, types.Payout{
		Type:   q.Type.String(),
		Stake:  types.Money(q.Stake),
		Odds:   odds,
		Payout: types.Money(q.Payout),
		Bets:   q.Selections,
	})
}

func (h *BetslipHandler) mutation(id string, changed, present bool) types.Mutation {
	return types.Mutation{ID: id, Changed: changed, Present: present, Type: h.slip.CurrentType().String()}
}
