package core

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"puretrack/internal/types"
)

// Validator wraps go-playground/validator for request payload validation.
// Handlers call ValidateStruct after decoding; field failures come back as
// a 400 AppError with per-field details.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator with struct tag validation enabled.
func NewValidator(logger *slog.Logger) *Validator {
	return &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// ValidateStruct validates s against its struct tags. On failure it returns
// a *types.AppError with a validation error code and a details map of
// field name -> failed rule.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		// A non-struct value reached validation; programmer error.
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation invoked on non-struct value", err)
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		details := make(map[string]any, len(fieldErrs))
		for _, fe := range fieldErrs {
			rule := fe.Tag()
			if fe.Param() != "" {
				rule += "=" + fe.Param()
			}
			details[fieldPath(fe)] = rule
		}
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationMissingField,
			"request payload failed validation",
			err,
			details,
		)
	}

	return types.NewAppError(types.ErrCodeInternalUnexpected, "validation failed", err)
}

// fieldPath strips the top-level struct name from the namespace so details
// read "Event.Parameter" rather than "IngestRequest.Event.Parameter".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
