package validation

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	// validate is a singleton validator instance
	validate *validator.Validate

	// Validation constants bounding the recognized config options.
	MinInitialCapacity = 1000
	MaxKeyLength       = 1 << 16 // a single key may not itself exceed the 64KiB line limit
	MaxBatchKeys       = 4096
	MinScaleSize       = 2
	MaxScaleSize       = 4

	// namePattern matches the accepted filter name grammar: [A-Za-z0-9._]+
	namePattern = regexp.MustCompile(`^[A-Za-z0-9._]+$`)
)

func init() {
	validate = validator.New()
}

// CreateRequest represents a `create name [capacity [probability]]` command.
type CreateRequest struct {
	Name        string  `validate:"required"`
	Capacity    int     `validate:"omitempty,min=1000"`
	Probability float64 `validate:"omitempty,gt=0,lt=1"`
}

// ValidateFilterName validates a filter name against the accepted grammar.
func ValidateFilterName(name string) error {
	if name == "" {
		return errors.New("filter name cannot be empty")
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("filter name %q is invalid (must match [A-Za-z0-9._]+)", name)
	}
	return nil
}

// ValidateCreateRequest validates a create command's parsed arguments.
func ValidateCreateRequest(req *CreateRequest) error {
	if req == nil {
		return errors.New("create request cannot be nil")
	}

	if err := ValidateFilterName(req.Name); err != nil {
		return err
	}

	if err := validate.Struct(req); err != nil {
		return formatValidationError(err)
	}

	if req.Capacity != 0 && req.Capacity < MinInitialCapacity {
		return fmt.Errorf("capacity: must be at least %d, got %d", MinInitialCapacity, req.Capacity)
	}
	if req.Probability != 0 && (req.Probability <= 0 || req.Probability >= 1) {
		return fmt.Errorf("probability: must be in (0, 1), got %v", req.Probability)
	}

	return nil
}

// ValidateKey validates a single key argument to check/set.
func ValidateKey(key string) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	if len(key) > MaxKeyLength {
		return fmt.Errorf("key exceeds maximum length of %d bytes", MaxKeyLength)
	}
	return nil
}

// ValidateBatchKeys validates the size of a multi/bulk command's key list.
func ValidateBatchKeys(keys []string) error {
	if len(keys) == 0 {
		return errors.New("at least one key is required")
	}
	if len(keys) > MaxBatchKeys {
		return fmt.Errorf("batch size must not exceed %d keys, got %d", MaxBatchKeys, len(keys))
	}
	for _, k := range keys {
		if err := ValidateKey(k); err != nil {
			return err
		}
	}
	return nil
}

// formatValidationError converts validator errors to a more user-friendly
// format, matching the protocol's Client Error replies.
func formatValidationError(err error) error {
	if err == nil {
		return nil
	}

	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	for _, e := range validationErrs {
		field := e.Field()
		tag := e.Tag()
		param := e.Param()

		switch tag {
		case "required":
			return fmt.Errorf("%s: field is required", field)
		case "min":
			return fmt.Errorf("%s: must be at least %s", field, param)
		case "max":
			return fmt.Errorf("%s: must not exceed %s", field, param)
		case "gt":
			return fmt.Errorf("%s: must be greater than %s", field, param)
		case "lt":
			return fmt.Errorf("%s: must be less than %s", field, param)
		default:
			return fmt.Errorf("%s: validation failed (%s)", field, tag)
		}
	}

	return err
}
