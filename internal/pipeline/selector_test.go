package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateSelector(t *testing.T) {
	require.NoError(t, ValidateSelector("CA", 2023))
	require.NoError(t, ValidateSelector("ca", 2023))
	require.NoError(t, ValidateSelector(" tx ", MinYear))
	require.NoError(t, ValidateSelector("NY", MaxYear))
}

func TestValidateSelectorRejects(t *testing.T) {
	cases := []struct {
		name  string
		state string
		year  int
	}{
		{"unknown state", "ZZ", 2023},
		{"empty state", "", 2023},
		{"year too early", "CA", MinYear - 1},
		{"year too late", "CA", MaxYear + 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateSelector(tc.state, tc.year)
			require.ErrorIs(t, err, ErrSelector)
		})
	}
}
