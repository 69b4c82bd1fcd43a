package model_test

import (
	"testing"
	"time"

	"github.com/CZERTAINLY/apimon/internal/model"

	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	t.Parallel()

	var testCases = []struct {
		scenario string
		given    string
		then     time.Duration
		err      bool
	}{
		{"seconds", "90s", 90 * time.Second, false},
		{"minutes", "3m", 3 * time.Minute, false},
		{"all units", "1d2h3m4s", 26*time.Hour + 3*time.Minute + 4*time.Second, false},
		{"iso seconds", "PT2S", 2 * time.Second, false},
		{"iso fraction", "PT1.5S", 1500 * time.Millisecond, false},
		{"iso days", "P1DT1H", 25 * time.Hour, false},
		{"iso months are ambiguous", "P2M", 0, true},
		{"iso T without value", "P2DT", 0, true},
		{"wrong order", "3s2m", 0, true},
		{"unit missing", "15", 0, true},
		{"empty", "", 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.scenario, func(t *testing.T) {
			d, err := model.ParseDuration(tc.given)
			if tc.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.then, d)
		})
	}
}
