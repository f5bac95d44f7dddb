package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/arbfinder/internal/domain"
	"github.com/alanyoungcy/arbfinder/internal/service"
)

// ArbService defines the methods that the arbitrage handler requires.
type ArbService interface {
	ListRecent(ctx context.Context, limit int) ([]domain.ArbitrageOpportunity, error)
	Get(ctx context.Context, id string) (domain.ArbitrageOpportunity, error)
}

// StakePlanner computes stake plans.
type StakePlanner interface {
	Defaults() service.StakeDefaults
	Plan(opp domain.ArbitrageOpportunity, wager, rounding float64) service.OpportunityPlan
	PlanStored(ctx context.Context, id string, wager, rounding float64) (service.OpportunityPlan, error)
}

// ArbHandler serves opportunity and stake endpoints.
type ArbHandler struct {
	arb    ArbService
	stakes StakePlanner
	logger *slog.Logger
}

// NewArbHandler creates an ArbHandler.
func NewArbHandler(arb ArbService, stakes StakePlanner, logger *slog.Logger) *ArbHandler {
	return &ArbHandler{arb: arb, stakes: stakes, logger: logHandler(logger, "arbitrage")}
}

type listArbResponse struct {
	Opportunities []domain.ArbitrageOpportunity `json:"opportunities"`
}

// ListRecent returns the most recent arbitrage opportunities.
// GET /api/arbitrage/recent?limit=20
func (h *ArbHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	opps, err := h.arb.ListRecent(r.Context(), service.ClampLimit(queryInt(r, "limit", 0)))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list opportunities failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list arbitrage opportunities")
		return
	}
	if opps == nil {
		opps = []domain.ArbitrageOpportunity{}
	}
	writeJSON(w, http.StatusOK, listArbResponse{Opportunities: opps})
}

// Get returns one opportunity.
// GET /api/arbitrage/{id}
func (h *ArbHandler) Get(w http.ResponseWriter, r *http.Request) {
	opp, err := h.arb.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeLookupError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, opp)
}

// Stakes plans a stored opportunity.
// GET /api/arbitrage/{id}/stakes?wager=100&rounding=5
func (h *ArbHandler) Stakes(w http.ResponseWriter, r *http.Request) {
	def := h.stakes.Defaults()
	wager, err := queryFloat(r, "wager", def.Wager)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rounding, err := queryFloat(r, "rounding", def.Rounding)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	plan, err := h.stakes.PlanStored(r.Context(), r.PathValue("id"), wager, rounding)
	if err != nil {
		h.writeLookupError(w, r, err)
		return
	}
	writeJSON(w, planStatus(plan), plan)
}

type stakeRequest struct {
	Opportunity *domain.ArbitrageOpportunity `json:"opportunity"`
	Wager       *float64                     `json:"wager"`
	Rounding    *float64                     `json:"rounding"`
}

// PlanStakes plans an opportunity supplied in the request body.
// POST /api/stakes
func (h *ArbHandler) PlanStakes(w http.ResponseWriter, r *http.Request) {
	var req stakeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Opportunity == nil {
		writeError(w, http.StatusBadRequest, "missing opportunity")
		return
	}
	def := h.stakes.Defaults()
	wager, rounding := def.Wager, def.Rounding
	if req.Wager != nil {
		wager = *req.Wager
	}
	if req.Rounding != nil {
		rounding = *req.Rounding
	}

	plan := h.stakes.Plan(*req.Opportunity, wager, rounding)
	writeJSON(w, planStatus(plan), plan)
}

// planStatus maps a failed plan to 422 so clients can tell bad input from a
// plan with quality flags.
func planStatus(p service.OpportunityPlan) int {
	if p.Plan.Status == domain.StatusFailure {
		return http.StatusUnprocessableEntity
	}
	return http.StatusOK
}

func (h *ArbHandler) writeLookupError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "opportunity not found")
		return
	}
	h.logger.ErrorContext(r.Context(), "get opportunity failed", slog.String("error", err.Error()))
	writeError(w, http.StatusInternalServerError, "failed to get opportunity")
}
