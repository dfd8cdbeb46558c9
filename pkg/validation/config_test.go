package validation

import (
	"errors"
	"testing"
)

func TestConfigValidator_Required(t *testing.T) {
	cv := NewConfigValidator("TestConfig")
	cv.Required("Name", "")

	if !cv.HasErrors() {
		t.Error("Expected error for empty required field")
	}

	cv2 := NewConfigValidator("TestConfig")
	cv2.Required("Name", "value")

	if cv2.HasErrors() {
		t.Error("Expected no error for non-empty required field")
	}
}

func TestConfigValidator_RequiredInt(t *testing.T) {
	cv := NewConfigValidator("TestConfig")
	cv.RequiredInt("Port", 0)

	if !cv.HasErrors() {
		t.Error("Expected error for zero required int")
	}

	cv2 := NewConfigValidator("TestConfig")
	cv2.RequiredInt("Port", 8080)

	if cv2.HasErrors() {
		t.Error("Expected no error for non-zero required int")
	}
}

func TestConfigValidator_MinInt(t *testing.T) {
	cv := NewConfigValidator("TestConfig")
	cv.MinInt("Workers", 0, 1)

	if !cv.HasErrors() {
		t.Error("Expected error for value below minimum")
	}

	cv2 := NewConfigValidator("TestConfig")
	cv2.MinInt("Workers", 5, 1)

	if cv2.HasErrors() {
		t.Error("Expected no error for value at or above minimum")
	}
}

func TestConfigValidator_RangeInt(t *testing.T) {
	tests := []struct {
		name      string
		value     int
		min       int
		max       int
		expectErr bool
	}{
		{"below range", 0, 1, 10, true},
		{"above range", 15, 1, 10, true},
		{"at min", 1, 1, 10, false},
		{"at max", 10, 1, 10, false},
		{"in range", 5, 1, 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cv := NewConfigValidator("TestConfig")
			cv.RangeInt("Value", tt.value, tt.min, tt.max)

			if tt.expectErr && !cv.HasErrors() {
				t.Error("Expected error")
			}
			if !tt.expectErr && cv.HasErrors() {
				t.Errorf("Unexpected error: %v", cv.Error())
			}
		})
	}
}

func TestConfigValidator_Positive(t *testing.T) {
	cv := NewConfigValidator("TestConfig")
	cv.Positive("Count", 0)

	if !cv.HasErrors() {
		t.Error("Expected error for zero value")
	}

	cv2 := NewConfigValidator("TestConfig")
	cv2.Positive("Count", -5)

	if !cv2.HasErrors() {
		t.Error("Expected error for negative value")
	}

	cv3 := NewConfigValidator("TestConfig")
	cv3.Positive("Count", 5)

	if cv3.HasErrors() {
		t.Error("Expected no error for positive value")
	}
}

func TestConfigValidator_NonNegative(t *testing.T) {
	cv := NewConfigValidator("TestConfig")
	cv.NonNegative("Count", -1)

	if !cv.HasErrors() {
		t.Error("Expected error for negative value")
	}

	cv2 := NewConfigValidator("TestConfig")
	cv2.NonNegative("Count", 0)

	if cv2.HasErrors() {
		t.Error("Expected no error for zero value")
	}
}

func TestConfigValidator_Custom(t *testing.T) {
	cv := NewConfigValidator("TestConfig")
	cv.Custom("CustomField", func() error {
		return errors.New("custom validation failed")
	})

	if !cv.HasErrors() {
		t.Error("Expected error from custom validation")
	}

	cv2 := NewConfigValidator("TestConfig")
	cv2.Custom("CustomField", func() error {
		return nil
	})

	if cv2.HasErrors() {
		t.Error("Expected no error from passing custom validation")
	}
}

func TestConfigValidator_When(t *testing.T) {
	// Condition true - validation should run
	cv := NewConfigValidator("TestConfig")
	cv.When(true, func(v *ConfigValidator) {
		v.Positive("Count", -1)
	})

	if !cv.HasErrors() {
		t.Error("Expected error when condition is true")
	}

	// Condition false - validation should not run
	cv2 := NewConfigValidator("TestConfig")
	cv2.When(false, func(v *ConfigValidator) {
		v.Positive("Count", -1)
	})

	if cv2.HasErrors() {
		t.Error("Expected no error when condition is false")
	}
}

func TestConfigValidator_Chaining(t *testing.T) {
	cv := NewConfigValidator("ServerConfig")
	cv.Required("Host", "localhost").
		RangeInt("Port", 8080, 1, 65535).
		Positive("Workers", 4)

	if cv.HasErrors() {
		t.Errorf("Expected no errors for valid config, got: %v", cv.Error())
	}
}

func TestConfigValidator_MultipleErrors(t *testing.T) {
	cv := NewConfigValidator("TestConfig")
	cv.Required("Name", "").
		Positive("Count", -1).
		RangeInt("Port", 0, 1, 65535)

	if len(cv.Errors()) != 3 {
		t.Errorf("Expected 3 errors, got %d", len(cv.Errors()))
	}
}

func TestConfigValidator_Validate(t *testing.T) {
	cv := NewConfigValidator("TestConfig")
	cv.Required("Name", "")

	err := cv.Validate()
	if err == nil {
		t.Error("Expected error from Validate()")
	}

	cv2 := NewConfigValidator("TestConfig")
	cv2.Required("Name", "valid")

	err2 := cv2.Validate()
	if err2 != nil {
		t.Errorf("Expected no error from Validate(), got: %v", err2)
	}
}
