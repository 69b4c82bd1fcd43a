package diag_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/CZERTAINLY/apimon/internal/diag"

	"github.com/stretchr/testify/require"
)

var timingLineRx = regexp.MustCompile(`^(DNS Lookup|TCP Connection|SSL Handshake|TTFB|Total Time): +(\d+\.\d{6})s$`)

func TestHTTPTimingStage(t *testing.T) {
	t.Parallel()
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "pong")
	}))
	t.Cleanup(srv.Close)

	transport := srv.Client().Transport.(*http.Transport).Clone()
	transport.DisableKeepAlives = true
	stage := &diag.HTTPTimingStage{
		Client:  &http.Client{Transport: transport},
		Timeout: 5 * time.Second,
	}

	host := strings.TrimPrefix(srv.URL, "https://")
	out, err := stage.Run(t.Context(), host)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.GreaterOrEqual(t, len(lines), 8)
	var labels []string
	for _, line := range lines[:5] {
		m := timingLineRx.FindStringSubmatch(line)
		require.NotNil(t, m, line)
		labels = append(labels, m[1])
	}
	require.Equal(t, []string{"DNS Lookup", "TCP Connection", "SSL Handshake", "TTFB", "Total Time"}, labels)
	require.NotEqual(t, "SSL Handshake:   0.000000s", lines[2])
	require.Equal(t, "HTTP Status:     200 OK", lines[5])
	require.True(t, strings.HasPrefix(lines[6], "TLS Version:     TLS 1."), lines[6])
	require.True(t, strings.HasPrefix(lines[7], "Cipher Suite:    TLS_"), lines[7])
	require.Contains(t, out, "Expires:")
}

func TestHTTPTimingStageFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewTLSServer(http.NotFoundHandler())
	host := strings.TrimPrefix(srv.URL, "https://")
	srv.Close()

	stage := &diag.HTTPTimingStage{Timeout: time.Second}
	out, err := stage.Run(t.Context(), host)
	require.Error(t, err)
	require.Contains(t, out, "Total Time:")
}
