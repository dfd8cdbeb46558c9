package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFilterName(t *testing.T) {
	tests := []struct {
		name      string
		filter    string
		expectErr bool
	}{
		{"simple", "foobar", false},
		{"dots and underscores", "events.2026_07.v2", false},
		{"empty", "", true},
		{"space", "foo bar", true},
		{"slash", "foo/bar", true},
		{"unicode", "föö", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilterName(tt.filter)
			if tt.expectErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateCreateRequest(t *testing.T) {
	t.Run("nil request", func(t *testing.T) {
		err := ValidateCreateRequest(nil)
		require.Error(t, err)
	})

	t.Run("defaults only", func(t *testing.T) {
		err := ValidateCreateRequest(&CreateRequest{Name: "t"})
		require.NoError(t, err)
	})

	t.Run("valid overrides", func(t *testing.T) {
		err := ValidateCreateRequest(&CreateRequest{Name: "t", Capacity: 100000, Probability: 0.001})
		require.NoError(t, err)
	})

	t.Run("capacity below minimum", func(t *testing.T) {
		err := ValidateCreateRequest(&CreateRequest{Name: "t", Capacity: 10})
		require.Error(t, err)
		assert.Contains(t, strings.ToLower(err.Error()), "capacity")
	})

	t.Run("probability out of range", func(t *testing.T) {
		err := ValidateCreateRequest(&CreateRequest{Name: "t", Capacity: 1000, Probability: 1.5})
		require.Error(t, err)
	})

	t.Run("bad name rejected before struct validation", func(t *testing.T) {
		err := ValidateCreateRequest(&CreateRequest{Name: "bad name!"})
		require.Error(t, err)
	})
}

func TestValidateKey(t *testing.T) {
	require.NoError(t, ValidateKey("a"))
	require.Error(t, ValidateKey(""))
	require.Error(t, ValidateKey(strings.Repeat("x", MaxKeyLength+1)))
}

func TestValidateBatchKeys(t *testing.T) {
	require.Error(t, ValidateBatchKeys(nil))
	require.NoError(t, ValidateBatchKeys([]string{"a", "b", "c"}))

	big := make([]string, MaxBatchKeys+1)
	for i := range big {
		big[i] = "k"
	}
	require.Error(t, ValidateBatchKeys(big))
}
