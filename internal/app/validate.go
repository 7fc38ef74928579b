package app

import (
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	ierr "garments-erp/internal/errors"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report fields by their JSON names.
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		// Decimals validate as numbers, so gt=0 and gte=0 apply to them.
		validate.RegisterCustomTypeFunc(func(v reflect.Value) any {
			if d, ok := v.Interface().(decimal.Decimal); ok {
				return d.InexactFloat64()
			}
			return nil
		}, decimal.Decimal{})
	})
	return validate
}

// ValidateRequest checks req against its validate tags. Failures are
// InvalidInput errors whose details map each JSON field to the failed rule.
func ValidateRequest(req any) error {
	err := getValidator().Struct(req)
	if err == nil {
		return nil
	}

	details := make(map[string]any)
	var fieldErrs validator.ValidationErrors
	if ierr.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			details[fieldPath(fe)] = fe.Tag()
		}
	}
	return ierr.WithError(err).
		WithHint("Request validation failed").
		WithReportableDetails(details).
		Mark(ierr.ErrInvalidInput)
}

// fieldPath drops the struct name from a namespace: CreateBillRequest.items[0].quantity → items[0].quantity.
func fieldPath(fe validator.FieldError) string {
	_, path, found := strings.Cut(fe.Namespace(), ".")
	if !found {
		return fe.Field()
	}
	return path
}

func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, ierr.NewErrorf("invalid %s %q", field, value).
			WithHintf("%s must be a date in YYYY-MM-DD format", field).
			WithReportableDetails(map[string]any{field: "datetime"}).
			Mark(ierr.ErrInvalidInput)
	}
	return t, nil
}

func parseOptionalDate(field, value string) (*time.Time, error) {
	t, err := parseDate(field, value)
	if err != nil || t.IsZero() {
		return nil, err
	}
	return &t, nil
}

func parseDateOr(field, value string, fallback time.Time) (time.Time, error) {
	t, err := parseDate(field, value)
	if err != nil || !t.IsZero() {
		return t, err
	}
	return fallback, nil
}
