package theme

import (
	"bytes"
	"strings"
	"testing"
)

func TestBanner(t *testing.T) {
	var b bytes.Buffer
	FprintBanner(&b)
	if !strings.Contains(b.String(), "W O R K O U T N E T") || b.String() != Banner() {
		t.Fatalf("unexpected banner %q", b.String())
	}
}
