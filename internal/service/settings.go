package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"amza-pricing-api/internal/model"
	"amza-pricing-api/internal/pricing"
	"amza-pricing-api/internal/repository"

	"github.com/sirupsen/logrus"
)

// SettingsService manages analysis configs, exchange rates and brand restrictions.
type SettingsService struct {
	configs repository.ConfigRepository
	rates   repository.RateRepository
	brands  repository.BrandRepository
	now     func() time.Time
	log     *logrus.Entry
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configs repository.ConfigRepository, rates repository.RateRepository, brands repository.BrandRepository) *SettingsService {
	return &SettingsService{
		configs: configs,
		rates:   rates,
		brands:  brands,
		now:     time.Now,
		log:     logrus.WithField("component", "SettingsService"),
	}
}

// ListConfigs returns every analysis config.
func (s *SettingsService) ListConfigs(ctx context.Context) ([]model.AnalysisConfig, error) {
	return s.configs.ListConfigs(ctx)
}

// CreateConfig validates and stores a config.
func (s *SettingsService) CreateConfig(ctx context.Context, c *model.AnalysisConfig) error {
	if strings.TrimSpace(c.Name) == "" {
		return pricing.InvalidConfig("name is required")
	}
	if err := pricing.ValidateConfig(c); err != nil {
		return err
	}
	if err := s.configs.CreateConfig(ctx, c); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"config_id": c.ID, "active": c.IsActive}).Info("analysis config created")
	return nil
}

// ActivateConfig makes id the only active config.
func (s *SettingsService) ActivateConfig(ctx context.Context, id string) (*model.AnalysisConfig, error) {
	if err := s.configs.ActivateConfig(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, pricing.NotFound("analysis config " + id + " not found")
		}
		return nil, err
	}
	s.log.WithField("config_id", id).Info("analysis config activated")
	return s.configs.GetConfig(ctx, id)
}

// ActiveRate returns the active rate of a currency pair.
func (s *SettingsService) ActiveRate(ctx context.Context, from, to string) (*model.ExchangeRate, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	r, err := s.rates.ActiveRate(ctx, from, to)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, pricing.ExchangeRateNotFound(from, to)
		}
		return nil, err
	}
	return r, nil
}

// CreateRate validates and stores an exchange rate.
func (s *SettingsService) CreateRate(ctx context.Context, r *model.ExchangeRate) error {
	r.FromCurrency = strings.ToUpper(strings.TrimSpace(r.FromCurrency))
	r.ToCurrency = strings.ToUpper(strings.TrimSpace(r.ToCurrency))
	if len(r.FromCurrency) != 3 || len(r.ToCurrency) != 3 {
		return pricing.InvalidConfig("currencies must be 3-letter codes")
	}
	if !r.Rate.IsPositive() {
		return pricing.InvalidConfig("rate must be greater than 0")
	}
	if r.Source == "" {
		r.Source = model.RateSourceManual
	}
	if r.Source != model.RateSourceManual && r.Source != model.RateSourceAPI {
		return pricing.InvalidConfig("source must be %q or %q", model.RateSourceManual, model.RateSourceAPI)
	}
	if err := s.rates.CreateRate(ctx, r); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"rate_id": r.ID,
		"pair":    r.FromCurrency + "/" + r.ToCurrency,
		"rate":    r.Rate.String(),
		"active":  r.IsActive,
	}).Info("exchange rate created")
	return nil
}

// ActivateRate makes id the only active rate of its pair.
func (s *SettingsService) ActivateRate(ctx context.Context, id string) error {
	if err := s.rates.ActivateRate(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return pricing.NotFound("exchange rate " + id + " not found")
		}
		return err
	}
	return nil
}

// ListBrands returns every brand restriction.
func (s *SettingsService) ListBrands(ctx context.Context) ([]model.BrandRestriction, error) {
	return s.brands.ListBrands(ctx)
}

// SetBrand creates or updates a brand restriction.
func (s *SettingsService) SetBrand(ctx context.Context, name string, allowed bool) (*model.BrandRestriction, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, pricing.InvalidConfig("brand name is required")
	}
	b := &model.BrandRestriction{
		Name:           name,
		NormalizedName: model.NormalizeBrand(name),
		IsAllowed:      allowed,
		UpdatedAt:      s.now().UTC(),
	}
	if err := s.brands.UpsertBrand(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

var allowedValues = map[string]bool{
	"1": true, "true": true, "yes": true, "si": true, "allowed": true, "permitido": true,
}

// ImportBrands reads a CSV of brand restrictions. With a header row the
// columns are brand|name and allowed|is_allowed; without one the first
// column is the brand and the second the allowed flag.
func (s *SettingsService) ImportBrands(ctx context.Context, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return 0, pricing.InvalidConfig("invalid CSV: %v", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	brandCol, allowedCol := 0, 1
	header := rows[0]
	hasHeader := false
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "brand", "name":
			brandCol, hasHeader = i, true
		case "allowed", "is_allowed":
			allowedCol, hasHeader = i, true
		}
	}
	if hasHeader {
		rows = rows[1:]
	}

	imported := 0
	for _, row := range rows {
		if brandCol >= len(row) {
			continue
		}
		name := strings.TrimSpace(strings.TrimPrefix(row[brandCol], "\ufeff"))
		if name == "" {
			continue
		}
		allowed := false
		if allowedCol < len(row) {
			allowed = allowedValues[strings.ToLower(strings.TrimSpace(row[allowedCol]))]
		}
		if _, err := s.SetBrand(ctx, name, allowed); err != nil {
			return imported, fmt.Errorf("failed to import brand %q: %w", name, err)
		}
		imported++
	}

	s.log.WithField("count", imported).Info("brand restrictions imported")
	return imported, nil
}
