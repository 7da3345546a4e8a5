package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"amza-pricing-api/internal/pricing"
	"amza-pricing-api/internal/repository"
	"amza-pricing-api/pkg/apierror"
	"amza-pricing-api/pkg/response"

	"github.com/sirupsen/logrus"
)

// kindErrors maps analysis error kinds onto HTTP errors.
var kindErrors = map[pricing.Kind]func(string) *apierror.Error{
	pricing.KindTokenLimitExceeded:      apierror.TooManyRequests,
	pricing.KindDataProviderUnavailable: apierror.ServiceUnavailable,
	pricing.KindDataProviderError:       apierror.InternalError,
	pricing.KindExchangeRateNotFound:    apierror.BadRequest,
	pricing.KindAnalysisConfigNotFound:  apierror.BadRequest,
	pricing.KindInvalidConfig:           apierror.BadRequest,
	pricing.KindNotFound:                apierror.NotFound,
}

// toAPIError translates a service error into its HTTP representation.
func toAPIError(err error) *apierror.Error {
	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var pe *pricing.Error
	if errors.As(err, &pe) {
		if build, ok := kindErrors[pe.Kind]; ok {
			return build(pe.Error()).WithCode(pe.Kind.String())
		}
	}

	if errors.Is(err, repository.ErrNotFound) {
		return apierror.NotFound("")
	}
	return apierror.InternalError("")
}

// writeError logs server-side failures and sends the translated error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := toAPIError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		logrus.WithFields(logrus.Fields{
			"path":   r.URL.Path,
			"status": apiErr.StatusCode,
		}).WithError(err).Error("request failed")
	}
	response.Error(w, apiErr)
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apierror.BadRequest(fmt.Sprintf("invalid JSON: %v", err))
	}
	return nil
}
