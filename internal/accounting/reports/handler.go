package reports

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// TrialBalanceLoader returns the ledger trial balance.
type TrialBalanceLoader interface {
	LoadTrialBalance(ctx context.Context, scope accounting.Scope, asOf time.Time) (accounting.TrialBalance, error)
}

// Handler serves presentation reports built on the trial balance.
type Handler struct {
	logger *slog.Logger
	loader TrialBalanceLoader
	scale  int32
}

func NewHandler(logger *slog.Logger, loader TrialBalanceLoader, scale int32) *Handler {
	return &Handler{logger: logger, loader: loader, scale: scale}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/reports/trial-balance.csv", h.handleTrialBalanceCSV)
	r.Get("/reports/profit-and-loss", h.handleProfitAndLoss)
	r.Get("/reports/balance-sheet", h.handleBalanceSheet)
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (accounting.TrialBalance, bool) {
	scope, _, err := accounting.Caller(r)
	if err != nil {
		httpx.RespondError(w, err, accounting.ProblemRules...)
		return accounting.TrialBalance{}, false
	}
	asOf, err := accounting.AsOfParam(r)
	if err != nil {
		httpx.RespondError(w, err, accounting.ProblemRules...)
		return accounting.TrialBalance{}, false
	}
	tb, err := h.loader.LoadTrialBalance(r.Context(), scope, asOf)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "load trial balance", slog.Any("error", err))
		httpx.RespondError(w, err, accounting.ProblemRules...)
		return accounting.TrialBalance{}, false
	}
	return tb, true
}

func (h *Handler) handleTrialBalanceCSV(w http.ResponseWriter, r *http.Request) {
	tb, ok := h.load(w, r)
	if !ok {
		return
	}
	tag := language.English
	if accept := r.Header.Get("Accept-Language"); accept != "" {
		if tags, _, err := language.ParseAcceptLanguage(accept); err == nil && len(tags) > 0 {
			tag = tags[0]
		}
	}
	var buf bytes.Buffer
	if err := WriteTrialBalanceCSV(&buf, tb, NewAmountFormatter(tag, h.scale)); err != nil {
		h.logger.ErrorContext(r.Context(), "render trial balance csv", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="trial-balance-%s.csv"`, tb.AsOf.Format("2006-01-02")))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) handleProfitAndLoss(w http.ResponseWriter, r *http.Request) {
	tb, ok := h.load(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, BuildProfitAndLoss(FromTrialBalance(tb)))
}

func (h *Handler) handleBalanceSheet(w http.ResponseWriter, r *http.Request) {
	tb, ok := h.load(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, BuildBalanceSheet(FromTrialBalance(tb)))
}
