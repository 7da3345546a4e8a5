package handler

import (
	"net/http"
	"strings"

	"amza-pricing-api/internal/model"
	"amza-pricing-api/internal/service"
	"amza-pricing-api/pkg/apierror"
	"amza-pricing-api/pkg/response"
)

const maxImportBody = 5 << 20

// SettingsHandler handles analysis configs, exchange rates and brand restrictions.
type SettingsHandler struct {
	settings       *service.SettingsService
	originCurrency string
	destCurrency   string
}

// NewSettingsHandler creates a new settings handler. The currencies are the
// default pair for active-rate lookups.
func NewSettingsHandler(settings *service.SettingsService, originCurrency, destCurrency string) *SettingsHandler {
	return &SettingsHandler{
		settings:       settings,
		originCurrency: originCurrency,
		destCurrency:   destCurrency,
	}
}

// ListConfigs handles GET /api/v1/break-even-configs
func (h *SettingsHandler) ListConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := h.settings.ListConfigs(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if configs == nil {
		configs = []model.AnalysisConfig{}
	}
	response.OK(w, configs)
}

// CreateConfig handles POST /api/v1/break-even-configs. Omitted rates take
// the standard values.
func (h *SettingsHandler) CreateConfig(w http.ResponseWriter, r *http.Request) {
	cfg := model.DefaultAnalysisConfig()
	cfg.Name = ""
	if err := decodeJSON(r, &cfg); err != nil {
		response.Error(w, err)
		return
	}
	cfg.ID = ""

	if err := h.settings.CreateConfig(r.Context(), &cfg); err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, cfg)
}

// ActivateConfig handles POST /api/v1/break-even-configs/{id}/activate
func (h *SettingsHandler) ActivateConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	cfg, err := h.settings.ActivateConfig(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, cfg)
}

// ActiveRate handles GET /api/v1/exchange-rates/active?from=&to=
func (h *SettingsHandler) ActiveRate(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	if from == "" {
		from = h.originCurrency
	}
	to := r.URL.Query().Get("to")
	if to == "" {
		to = h.destCurrency
	}

	rate, err := h.settings.ActiveRate(r.Context(), from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, rate)
}

// CreateRate handles POST /api/v1/exchange-rates
func (h *SettingsHandler) CreateRate(w http.ResponseWriter, r *http.Request) {
	var rate model.ExchangeRate
	if err := decodeJSON(r, &rate); err != nil {
		response.Error(w, err)
		return
	}
	rate.ID = ""

	if err := h.settings.CreateRate(r.Context(), &rate); err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, rate)
}

// ActivateRate handles POST /api/v1/exchange-rates/{id}/activate
func (h *SettingsHandler) ActivateRate(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.settings.ActivateRate(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, map[string]interface{}{"id": id, "is_active": true})
}

// ListBrands handles GET /api/v1/brand-restrictions
func (h *SettingsHandler) ListBrands(w http.ResponseWriter, r *http.Request) {
	brands, err := h.settings.ListBrands(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if brands == nil {
		brands = []model.BrandRestriction{}
	}
	response.OK(w, brands)
}

type brandRequest struct {
	Name      string `json:"name"`
	IsAllowed *bool  `json:"is_allowed"`
}

// SetBrand handles POST /api/v1/brand-restrictions
func (h *SettingsHandler) SetBrand(w http.ResponseWriter, r *http.Request) {
	var req brandRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, err)
		return
	}
	if req.IsAllowed == nil {
		response.Error(w, apierror.ValidationError("invalid request",
			apierror.FieldError{Field: "is_allowed", Message: "is_allowed is required"}))
		return
	}

	brand, err := h.settings.SetBrand(r.Context(), req.Name, *req.IsAllowed)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, brand)
}

// ImportBrands handles POST /api/v1/brand-restrictions/import with a CSV body.
func (h *SettingsHandler) ImportBrands(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	ct := r.Header.Get("Content-Type")
	if ct != "" && !strings.HasPrefix(ct, "text/csv") && !strings.HasPrefix(ct, "text/plain") {
		response.Error(w, apierror.BadRequest("expected a text/csv body"))
		return
	}

	n, err := h.settings.ImportBrands(r.Context(), http.MaxBytesReader(w, r.Body, maxImportBody))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, map[string]interface{}{"imported": n})
}
