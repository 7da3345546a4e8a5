package pricing

import (
	"errors"
	"fmt"
)

// Kind classifies analysis failures. The HTTP layer owns the mapping from
// kind to status code.
type Kind int

const (
	KindUnknown Kind = iota
	KindTokenLimitExceeded
	KindDataProviderUnavailable
	KindDataProviderError
	KindExchangeRateNotFound
	KindAnalysisConfigNotFound
	KindInvalidConfig
	KindNotFound
)

var kindNames = map[Kind]string{
	KindUnknown:                 "UNKNOWN",
	KindTokenLimitExceeded:      "TOKEN_LIMIT_EXCEEDED",
	KindDataProviderUnavailable: "DATA_PROVIDER_UNAVAILABLE",
	KindDataProviderError:       "DATA_PROVIDER_ERROR",
	KindExchangeRateNotFound:    "EXCHANGE_RATE_NOT_FOUND",
	KindAnalysisConfigNotFound:  "ANALYSIS_CONFIG_NOT_FOUND",
	KindInvalidConfig:           "INVALID_CONFIG",
	KindNotFound:                "NOT_FOUND",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a classified analysis failure.
type Error struct {
	Kind       Kind
	Identifier string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Identifier != "" {
		msg = fmt.Sprintf("%s (asin %s)", msg, e.Identifier)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so callers can write
// errors.Is(err, &pricing.Error{Kind: pricing.KindTokenLimitExceeded}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func TokenLimitExceeded(used, limit int) *Error {
	return &Error{
		Kind:    KindTokenLimitExceeded,
		Message: fmt.Sprintf("keepa token limit exceeded, used %d/%d", used, limit),
	}
}

func DataProviderUnavailable(message string) *Error {
	return &Error{Kind: KindDataProviderUnavailable, Message: message}
}

func DataProviderError(identifier string, err error) *Error {
	return &Error{
		Kind:       KindDataProviderError,
		Identifier: identifier,
		Message:    "failed to fetch keepa data",
		Err:        err,
	}
}

func ExchangeRateNotFound(from, to string) *Error {
	return &Error{
		Kind:    KindExchangeRateNotFound,
		Message: fmt.Sprintf("no active %s->%s exchange rate found", from, to),
	}
}

func AnalysisConfigNotFound() *Error {
	return &Error{
		Kind:    KindAnalysisConfigNotFound,
		Message: "no active break even analysis config found",
	}
}

func InvalidConfig(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidConfig, Message: fmt.Sprintf(format, args...)}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}
