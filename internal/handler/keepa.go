package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"amza-pricing-api/internal/model"
	"amza-pricing-api/internal/service"
	"amza-pricing-api/pkg/apierror"
	"amza-pricing-api/pkg/response"

	"github.com/sirupsen/logrus"
)

const maxWebhookBody = 1 << 20

// KeepaHandler handles data provider HTTP requests.
type KeepaHandler struct {
	snapshots     *service.SnapshotService
	notifications *service.NotificationService
}

// NewKeepaHandler creates a new data provider handler.
func NewKeepaHandler(snapshots *service.SnapshotService, notifications *service.NotificationService) *KeepaHandler {
	return &KeepaHandler{
		snapshots:     snapshots,
		notifications: notifications,
	}
}

type syncRequest struct {
	ASIN        string `json:"asin"`
	Marketplace string `json:"marketplace"`
}

type trackRequest struct {
	ASINs               []string `json:"asins"`
	Marketplace         string   `json:"marketplace"`
	UpdateIntervalHours int      `json:"update_interval_hours"`
	ListName            string   `json:"list_name"`
}

// SyncASIN handles POST /api/v1/keepa-data/sync-asin
func (h *KeepaHandler) SyncASIN(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, err)
		return
	}
	if strings.TrimSpace(req.ASIN) == "" {
		response.Error(w, apierror.ValidationError("invalid request",
			apierror.FieldError{Field: "asin", Message: "asin is required"}))
		return
	}

	snap, err := h.snapshots.FetchSnapshot(r.Context(), req.ASIN, marketplaceParam(req.Marketplace))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, snap)
}

// Track handles POST /api/v1/keepa-data/track
func (h *KeepaHandler) Track(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, err)
		return
	}
	if len(req.ASINs) == 0 {
		response.Error(w, apierror.ValidationError("invalid request",
			apierror.FieldError{Field: "asins", Message: "at least one asin is required"}))
		return
	}

	result, err := h.notifications.Track(r.Context(), service.TrackInput{
		Identifiers:         req.ASINs,
		Marketplace:         marketplaceParam(req.Marketplace),
		UpdateIntervalHours: req.UpdateIntervalHours,
		ListName:            req.ListName,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, result)
}

// Webhook handles POST /api/v1/webhooks/keepa. The event is always
// acknowledged, even when recording it fails.
func (h *KeepaHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		logrus.WithError(err).Warn("failed to read keepa webhook body")
	}

	if _, err := h.notifications.RecordEvent(r.Context(), json.RawMessage(body)); err != nil {
		logrus.WithError(err).Error("failed to record keepa notification")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func marketplaceParam(raw string) model.Marketplace {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	if raw == "" {
		return model.MarketplaceUS
	}
	return model.Marketplace(raw)
}
