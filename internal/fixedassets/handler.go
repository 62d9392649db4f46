package fixedassets

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// ProblemRules maps depreciation errors ahead of the ledger rules.
var ProblemRules = append([]httpx.Rule{
	{Target: ErrDepreciation, Status: http.StatusConflict, Title: "Depreciation Conflict"},
}, accounting.ProblemRules...)

// MappingLoader resolves purpose accounts for disposals.
type MappingLoader interface {
	Load(ctx context.Context, scope accounting.Scope) (accounting.PurposeAccounts, error)
}

// Handler wires fixed asset endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	mappings MappingLoader
}

func NewHandler(logger *slog.Logger, service *Service, mappings MappingLoader) *Handler {
	return &Handler{logger: logger, service: service, mappings: mappings}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/asset-categories", func(r chi.Router) {
		r.Get("/", h.handleListCategories)
		r.Post("/", h.handleCreateCategory)
	})
	r.Route("/assets", func(r chi.Router) {
		r.Get("/", h.handleListAssets)
		r.Post("/", h.handleRegisterAsset)
		r.Get("/{id}", h.handleGetAsset)
		r.Get("/{id}/schedule", h.handleSchedule)
		r.Get("/{id}/depreciations", h.handleHistory)
		r.Post("/{id}/depreciate", h.handleDepreciate)
		r.Post("/{id}/dispose", h.handleDispose)
	})
	r.Post("/depreciation/runs", h.handleRunDue)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if !errors.Is(err, accounting.ErrValidation) && !errors.Is(err, accounting.ErrNotFound) &&
		!errors.Is(err, ErrDepreciation) && !errors.Is(err, httpx.ErrValidation) {
		h.logger.WarnContext(r.Context(), "fixed asset request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err, ProblemRules...)
}

type categoryRequest struct {
	Code                  string          `json:"code" validate:"required,max=32"`
	Name                  string          `json:"name" validate:"required,max=200"`
	UsefulLifeMonths      int             `json:"useful_life_months" validate:"required,gt=0,lte=1200"`
	Method                string          `json:"method" validate:"omitempty,oneof=STRAIGHT_LINE DECLINING_BALANCE SUM_OF_YEARS_DIGITS"`
	DecliningMultiplier   decimal.Decimal `json:"declining_multiplier"`
	SalvageRate           decimal.Decimal `json:"salvage_rate"`
	AssetAccountID        int64           `json:"asset_account_id" validate:"required,gt=0"`
	ExpenseAccountID      int64           `json:"expense_account_id" validate:"required,gt=0"`
	AccumulatedAccountID  int64           `json:"accumulated_account_id" validate:"required,gt=0"`
	DisposalGainAccountID int64           `json:"disposal_gain_account_id,omitempty" validate:"omitempty,gt=0"`
	DisposalLossAccountID int64           `json:"disposal_loss_account_id,omitempty" validate:"omitempty,gt=0"`
}

type categoryResponse struct {
	ID                    int64           `json:"id"`
	Code                  string          `json:"code"`
	Name                  string          `json:"name"`
	UsefulLifeMonths      int             `json:"useful_life_months"`
	Method                Method          `json:"method"`
	DecliningMultiplier   decimal.Decimal `json:"declining_multiplier"`
	SalvageRate           decimal.Decimal `json:"salvage_rate"`
	AssetAccountID        int64           `json:"asset_account_id"`
	ExpenseAccountID      int64           `json:"expense_account_id"`
	AccumulatedAccountID  int64           `json:"accumulated_account_id"`
	DisposalGainAccountID int64           `json:"disposal_gain_account_id,omitempty"`
	DisposalLossAccountID int64           `json:"disposal_loss_account_id,omitempty"`
}

func toCategoryResponse(c Category) categoryResponse {
	return categoryResponse{
		ID: c.ID, Code: c.Code, Name: c.Name, UsefulLifeMonths: c.UsefulLifeMonths, Method: c.Method,
		DecliningMultiplier: c.DecliningMultiplier, SalvageRate: c.SalvageRate, AssetAccountID: c.AssetAccountID,
		ExpenseAccountID: c.ExpenseAccountID, AccumulatedAccountID: c.AccumulatedAccountID,
		DisposalGainAccountID: c.DisposalGainAccountID, DisposalLossAccountID: c.DisposalLossAccountID,
	}
}

func (h *Handler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	scope, _, err := accounting.Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	list, err := h.service.ListCategories(r.Context(), scope)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]categoryResponse, 0, len(list))
	for _, c := range list {
		out = append(out, toCategoryResponse(c))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"categories": out})
}

func (h *Handler) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	scope, _, err := accounting.Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req categoryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.service.CreateCategory(r.Context(), scope, CategoryInput{
		Code: req.Code, Name: req.Name, UsefulLifeMonths: req.UsefulLifeMonths, Method: Method(req.Method),
		DecliningMultiplier: req.DecliningMultiplier, SalvageRate: req.SalvageRate,
		AssetAccountID: req.AssetAccountID, ExpenseAccountID: req.ExpenseAccountID,
		AccumulatedAccountID: req.AccumulatedAccountID, DisposalGainAccountID: req.DisposalGainAccountID,
		DisposalLossAccountID: req.DisposalLossAccountID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toCategoryResponse(c))
}

type registerAssetRequest struct {
	CategoryID        int64            `json:"category_id" validate:"required,gt=0"`
	Code              string           `json:"code" validate:"required,max=32"`
	Name              string           `json:"name" validate:"required,max=200"`
	Cost              decimal.Decimal  `json:"cost"`
	Currency          string           `json:"currency" validate:"required,len=3"`
	AcquisitionDate   string           `json:"acquisition_date" validate:"required,datetime=2006-01-02"`
	DepreciationStart string           `json:"depreciation_start,omitempty"`
	Salvage           *decimal.Decimal `json:"salvage,omitempty"`
	UsefulLifeMonths  int              `json:"useful_life_months,omitempty" validate:"omitempty,gt=0,lte=1200"`
}

type assetResponse struct {
	ID                int64            `json:"id"`
	CategoryID        int64            `json:"category_id"`
	Code              string           `json:"code"`
	Name              string           `json:"name"`
	Cost              decimal.Decimal  `json:"cost"`
	Currency          string           `json:"currency"`
	AcquisitionDate   string           `json:"acquisition_date"`
	DepreciationStart string           `json:"depreciation_start"`
	Salvage           decimal.Decimal  `json:"salvage"`
	UsefulLifeMonths  int              `json:"useful_life_months"`
	Method            Method           `json:"method"`
	Accumulated       decimal.Decimal  `json:"accumulated"`
	BookValue         decimal.Decimal  `json:"book_value"`
	LastPeriod        string           `json:"last_period,omitempty"`
	Status            AssetStatus      `json:"status"`
	DisposedAt        *time.Time       `json:"disposed_at,omitempty"`
	DisposalProceeds  *decimal.Decimal `json:"disposal_proceeds,omitempty"`
	DisposalEntryID   *int64           `json:"disposal_entry_id,omitempty"`
	Version           int64            `json:"version"`
}

func toAssetResponse(a Asset) assetResponse {
	resp := assetResponse{
		ID: a.ID, CategoryID: a.CategoryID, Code: a.Code, Name: a.Name, Cost: a.Cost, Currency: a.Currency,
		AcquisitionDate: a.AcquisitionDate.Format("2006-01-02"), DepreciationStart: a.DepreciationStart.String(),
		Salvage: a.Salvage, UsefulLifeMonths: a.UsefulLifeMonths, Method: a.Method, Accumulated: a.Accumulated,
		BookValue: a.BookValue(), Status: a.Status, DisposedAt: a.DisposedAt, DisposalProceeds: a.DisposalProceeds,
		DisposalEntryID: a.DisposalEntryID, Version: a.Version,
	}
	if a.LastPeriod != nil {
		resp.LastPeriod = a.LastPeriod.String()
	}
	return resp
}

func (h *Handler) handleListAssets(w http.ResponseWriter, r *http.Request) {
	scope, _, err := accounting.Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var statuses []AssetStatus
	if s := r.URL.Query().Get("status"); s != "" {
		statuses = append(statuses, AssetStatus(s))
	}
	list, err := h.service.ListAssets(r.Context(), scope, statuses...)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]assetResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toAssetResponse(a))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"assets": out})
}

func (h *Handler) handleRegisterAsset(w http.ResponseWriter, r *http.Request) {
	scope, _, err := accounting.Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req registerAssetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	acquired, err := accounting.ParseDate(req.AcquisitionDate)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	in := RegisterAssetInput{
		CategoryID: req.CategoryID, Code: req.Code, Name: req.Name, Cost: req.Cost, Currency: req.Currency,
		AcquisitionDate: acquired, Salvage: req.Salvage, UsefulLifeMonths: req.UsefulLifeMonths,
	}
	if req.DepreciationStart != "" {
		start, err := ParsePeriod(req.DepreciationStart)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		in.DepreciationStart = &start
	}
	asset, err := h.service.RegisterAsset(r.Context(), scope, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAssetResponse(asset))
}

func (h *Handler) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.assetRequest(w, r)
	if !ok {
		return
	}
	asset, err := h.service.GetAsset(r.Context(), scope, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAssetResponse(asset))
}

func (h *Handler) assetRequest(w http.ResponseWriter, r *http.Request) (accounting.Scope, int64, bool) {
	scope, _, err := accounting.Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return accounting.Scope{}, 0, false
	}
	id, err := accounting.PathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return accounting.Scope{}, 0, false
	}
	return scope, id, true
}

type scheduleLineResponse struct {
	N           int             `json:"n"`
	Period      string          `json:"period"`
	Amount      decimal.Decimal `json:"amount"`
	Accumulated decimal.Decimal `json:"accumulated"`
	BookValue   decimal.Decimal `json:"book_value"`
}

func (h *Handler) handleSchedule(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.assetRequest(w, r)
	if !ok {
		return
	}
	lines, err := h.service.Schedule(r.Context(), scope, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]scheduleLineResponse, 0, len(lines))
	for _, l := range lines {
		out = append(out, scheduleLineResponse{N: l.N, Period: l.Period.String(), Amount: l.Amount, Accumulated: l.Accumulated, BookValue: l.BookValue})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"asset_id": id, "schedule": out})
}

type depreciationResponse struct {
	ID          int64           `json:"id"`
	AssetID     int64           `json:"asset_id"`
	Period      string          `json:"period"`
	Amount      decimal.Decimal `json:"amount"`
	Accumulated decimal.Decimal `json:"accumulated"`
	EntryID     *int64          `json:"entry_id,omitempty"`
}

func toDepreciationResponse(d Depreciation) depreciationResponse {
	return depreciationResponse{ID: d.ID, AssetID: d.AssetID, Period: d.Period.String(), Amount: d.Amount, Accumulated: d.Accumulated, EntryID: d.EntryID}
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.assetRequest(w, r)
	if !ok {
		return
	}
	rows, err := h.service.History(r.Context(), scope, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]depreciationResponse, 0, len(rows))
	for _, d := range rows {
		out = append(out, toDepreciationResponse(d))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"depreciations": out})
}

type periodRequest struct {
	Period string `json:"period" validate:"required,len=7"`
}

func (h *Handler) handleDepreciate(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.assetRequest(w, r)
	if !ok {
		return
	}
	_, actor, _ := accounting.Caller(r)
	var req periodRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	period, err := ParsePeriod(req.Period)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dep, err := h.service.RunPeriod(r.Context(), scope, id, period, actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toDepreciationResponse(dep))
}

type disposeRequest struct {
	Date     string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Proceeds decimal.Decimal `json:"proceeds"`
}

func (h *Handler) handleDispose(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.assetRequest(w, r)
	if !ok {
		return
	}
	_, actor, _ := accounting.Caller(r)
	var req disposeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	date, err := accounting.ParseDate(req.Date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	accounts, err := h.mappings.Load(r.Context(), scope)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.service.Dispose(r.Context(), scope, DisposeInput{AssetID: id, Date: date, Proceeds: req.Proceeds, Accounts: accounts}, actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"asset":    toAssetResponse(out.Asset),
		"entry_id": out.Entry.ID,
		"gain":     out.Gain,
	})
}

func (h *Handler) handleRunDue(w http.ResponseWriter, r *http.Request) {
	scope, actor, err := accounting.Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req periodRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	period, err := ParsePeriod(req.Period)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	summary, err := h.service.RunDue(r.Context(), scope, period, actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	failures := make([]string, 0, len(summary.Errors))
	for _, e := range summary.Errors {
		failures = append(failures, e.Error())
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"period":   summary.Period.String(),
		"posted":   summary.Posted,
		"skipped":  summary.Skipped,
		"failed":   summary.Failed,
		"failures": failures,
	})
}
