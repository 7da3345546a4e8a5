package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"amza-pricing-api/internal/model"
	"amza-pricing-api/internal/service"
	"amza-pricing-api/pkg/apierror"
	"amza-pricing-api/pkg/response"
	"amza-pricing-api/pkg/uid"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// AnalysisHandler handles pricing analysis HTTP requests.
type AnalysisHandler struct {
	analysis *service.AnalysisService
	batches  *service.BatchService
}

// NewAnalysisHandler creates a new analysis handler.
func NewAnalysisHandler(analysis *service.AnalysisService, batches *service.BatchService) *AnalysisHandler {
	return &AnalysisHandler{
		analysis: analysis,
		batches:  batches,
	}
}

type analyzeRequest struct {
	ASIN     string           `json:"asin"`
	Shipping *decimal.Decimal `json:"shipping_cost_mxn"`
}

type bulkRequest struct {
	ASINs     []string         `json:"asins"`
	BatchName string           `json:"batch_name"`
	Shipping  *decimal.Decimal `json:"shipping_cost_mxn"`
}

// AnalyzeASIN handles POST /api/v1/pricing-analysis/analyze-asin
func (h *AnalysisHandler) AnalyzeASIN(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, err)
		return
	}
	if strings.TrimSpace(req.ASIN) == "" {
		response.Error(w, apierror.ValidationError("invalid request",
			apierror.FieldError{Field: "asin", Message: "asin is required"}))
		return
	}
	if err := validateShipping(req.Shipping); err != nil {
		response.Error(w, err)
		return
	}

	result, err := h.analysis.AnalyzeOne(r.Context(), req.ASIN, service.AnalyzeOptions{ShippingOverride: req.Shipping})
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, result)
}

// AnalyzeBulk handles POST /api/v1/pricing-analysis/analyze-bulk
func (h *AnalysisHandler) AnalyzeBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, err)
		return
	}

	var details []apierror.FieldError
	if len(req.ASINs) == 0 || len(req.ASINs) > service.MaxBatchSize {
		details = append(details, apierror.FieldError{
			Field:   "asins",
			Message: fmt.Sprintf("between 1 and %d asins are required", service.MaxBatchSize),
		})
	}
	for i, asin := range req.ASINs {
		if strings.TrimSpace(asin) == "" {
			details = append(details, apierror.FieldError{Field: fmt.Sprintf("asins[%d]", i), Message: "asin must not be blank"})
		}
	}
	if strings.TrimSpace(req.BatchName) == "" {
		details = append(details, apierror.FieldError{Field: "batch_name", Message: "batch_name is required"})
	}
	if len(details) > 0 {
		response.Error(w, apierror.ValidationError("invalid request", details...))
		return
	}
	if err := validateShipping(req.Shipping); err != nil {
		response.Error(w, err)
		return
	}

	batch, err := h.batches.Run(r.Context(), req.ASINs, strings.TrimSpace(req.BatchName), req.Shipping)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, batch)
}

// Feasible handles GET /api/v1/pricing-analysis/feasible
func (h *AnalysisHandler) Feasible(w http.ResponseWriter, r *http.Request) {
	page, limit := pagination(r)
	filter := model.ResultFilter{FeasibleOnly: true, Limit: limit, Offset: (page - 1) * limit}

	if raw := r.URL.Query().Get("min_margin"); raw != "" {
		margin, err := decimal.NewFromString(raw)
		if err != nil {
			response.Error(w, apierror.BadRequest("min_margin must be a decimal number"))
			return
		}
		filter.MinMargin = &margin
	}

	h.list(w, r, filter, page)
}

// List handles GET /api/v1/pricing-analysis
func (h *AnalysisHandler) List(w http.ResponseWriter, r *http.Request) {
	page, limit := pagination(r)
	h.list(w, r, model.ResultFilter{Limit: limit, Offset: (page - 1) * limit}, page)
}

func (h *AnalysisHandler) list(w http.ResponseWriter, r *http.Request, filter model.ResultFilter, page int) {
	results, total, err := h.analysis.ListResults(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if results == nil {
		results = []model.AnalysisResult{}
	}
	response.JSONWithMeta(w, http.StatusOK, results, page, filter.Limit, total)
}

// GetResult handles GET /api/v1/pricing-analysis/{id}
func (h *AnalysisHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	result, err := h.analysis.GetResult(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, result)
}

// Refresh handles POST /api/v1/pricing-analysis/{id}/refresh
func (h *AnalysisHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	result, err := h.analysis.Refresh(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, result)
}

// GetBatch handles GET /api/v1/pricing-batches/{id}
func (h *AnalysisHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	batch, err := h.batches.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, batch)
}

func validateShipping(shipping *decimal.Decimal) error {
	if shipping != nil && shipping.IsNegative() {
		return apierror.ValidationError("invalid request",
			apierror.FieldError{Field: "shipping_cost_mxn", Message: "must not be negative"})
	}
	return nil
}

// idParam reads the {id} route parameter. Anything that is not a UUID cannot
// exist, so it is answered with 404 without touching the store.
func idParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !uid.IsValid(id) {
		response.Error(w, apierror.NotFound(""))
		return "", false
	}
	return id, true
}

func pagination(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > maxPageLimit {
		limit = defaultPageLimit
	}
	return page, limit
}
