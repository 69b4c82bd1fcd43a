package diag

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"strings"
	"sync"
	"time"
)

// HTTPTimingStage measures the phases of one HTTPS request to the host
// without relying on curl being installed. All values are measured from the
// start of the request, as curl does.
type HTTPTimingStage struct {
	// Client sends the request, a client without connection reuse is used
	// when nil.
	Client  *http.Client
	Timeout time.Duration
}

func (s *HTTPTimingStage) Title() string {
	return TitleHTTPS
}

// timings is written from the trace hooks, which may run on dialer goroutines.
type timings struct {
	mu        sync.Mutex
	start     time.Time
	dnsDone   time.Time
	connected time.Time
	tlsDone   time.Time
	firstByte time.Time
	done      time.Time
	tls       *tls.ConnectionState
}

func (t *timings) mark(at *time.Time) {
	t.mu.Lock()
	*at = time.Now()
	t.mu.Unlock()
}

func (t *timings) since(at time.Time) time.Duration {
	if at.IsZero() {
		return 0
	}
	return at.Sub(t.start)
}

func (t *timings) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var sb strings.Builder
	line := func(label string, d time.Duration) {
		fmt.Fprintf(&sb, "%-17s%.6fs\n", label+":", d.Seconds())
	}
	line("DNS Lookup", t.since(t.dnsDone))
	line("TCP Connection", t.since(t.connected))
	line("SSL Handshake", t.since(t.tlsDone))
	line("TTFB", t.since(t.firstByte))
	line("Total Time", t.since(t.done))
	return sb.String()
}

// tlsDetails describes the negotiated TLS session, empty before a handshake.
func (t *timings) tlsDetails() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tls == nil {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%-17s%s\n", "TLS Version:", tls.VersionName(t.tls.Version))
	fmt.Fprintf(&sb, "%-17s%s\n", "Cipher Suite:", tls.CipherSuiteName(t.tls.CipherSuite))
	if len(t.tls.PeerCertificates) > 0 {
		leaf := t.tls.PeerCertificates[0]
		fmt.Fprintf(&sb, "%-17s%s\n", "Certificate:", leaf.Subject.String())
		fmt.Fprintf(&sb, "%-17s%s\n", "Issuer:", leaf.Issuer.String())
		fmt.Fprintf(&sb, "%-17s%s\n", "Expires:", leaf.NotAfter.UTC().Format(time.RFC3339))
	}
	return sb.String()
}

func (s *HTTPTimingStage) Run(ctx context.Context, host string) (string, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	client := s.Client
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				Proxy:             http.ProxyFromEnvironment,
				DisableKeepAlives: true,
				ForceAttemptHTTP2: true,
			},
		}
	}

	t := &timings{}
	trace := &httptrace.ClientTrace{
		DNSDone: func(httptrace.DNSDoneInfo) { t.mark(&t.dnsDone) },
		ConnectDone: func(_, _ string, err error) {
			if err == nil {
				t.mark(&t.connected)
			}
		},
		TLSHandshakeDone: func(state tls.ConnectionState, err error) {
			if err == nil {
				t.mark(&t.tlsDone)
				t.mu.Lock()
				t.tls = &state
				t.mu.Unlock()
			}
		},
		GotFirstResponseByte: func() { t.mark(&t.firstByte) },
	}

	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), http.MethodGet, "https://"+host, nil)
	if err != nil {
		return "", err
	}

	t.mark(&t.start)
	resp, err := client.Do(req)
	if err != nil {
		t.mark(&t.done)
		return t.String(), err
	}
	defer resp.Body.Close()
	_, err = io.Copy(io.Discard, resp.Body)
	t.mark(&t.done)

	out := t.String() + fmt.Sprintf("%-17s%s\n", "HTTP Status:", resp.Status) + t.tlsDetails()
	return out, err
}
