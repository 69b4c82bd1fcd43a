package probe_test

import (
	"testing"

	"github.com/CZERTAINLY/apimon/internal/probe"

	"github.com/stretchr/testify/require"
)

func TestDecoder(t *testing.T) {
	t.Parallel()

	var testCases = []struct {
		scenario string
		name     string
		given    []byte
		then     string
	}{
		{"utf-8", "utf-8", []byte("ping ok"), "ping ok"},
		{"utf-8 default", "", []byte("ok"), "ok"},
		{"utf-8 invalid", "UTF8", []byte{'a', 0xff, 'b'}, "a\uFFFDb"},
		{"thai console", "windows-874", []byte{0xa1}, "ก"},
		{"us console", "IBM437", []byte{0x82}, "é"},
		{"empty", "windows-1252", nil, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.scenario, func(t *testing.T) {
			d, err := probe.NewDecoder(tc.name)
			require.NoError(t, err)
			require.Equal(t, tc.then, d.Decode(tc.given))
		})
	}

	_, err := probe.NewDecoder("klingon")
	require.Error(t, err)
	require.Equal(t, "utf-8", probe.UTF8.Name())
}
