package probe

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
)

// Decoder converts raw tool output to UTF-8. Bytes which can't be decoded
// are replaced with U+FFFD, decoding never fails.
type Decoder struct {
	name string
	enc  encoding.Encoding
}

var UTF8 = Decoder{name: "utf-8"}

// NewDecoder looks up a charset by its WHATWG or IANA name, for example
// utf-8, windows-874 or IBM437 (the usual console code pages on Windows).
func NewDecoder(name string) (Decoder, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "", "utf-8", "utf8":
		return UTF8, nil
	}
	enc, err := htmlindex.Get(n)
	if err != nil || enc == nil {
		enc, err = ianaindex.IANA.Encoding(n)
	}
	if err != nil || enc == nil {
		return Decoder{}, fmt.Errorf("unsupported output encoding %q", name)
	}
	return Decoder{name: n, enc: enc}, nil
}

func (d Decoder) Name() string {
	if d.name == "" {
		return UTF8.name
	}
	return d.name
}

func (d Decoder) Decode(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	if d.enc == nil {
		return strings.ToValidUTF8(string(b), "\uFFFD")
	}
	out, err := d.enc.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "\uFFFD")
	}
	return strings.ToValidUTF8(string(out), "\uFFFD")
}
