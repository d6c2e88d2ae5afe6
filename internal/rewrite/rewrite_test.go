package rewrite

import (
	"errors"
	"strings"
	"testing"

	"github.com/matzegebbe/replicator/internal/failure"
)

const (
	origin      = "https://storage.googleapis.com/claude-code-dist/releases"
	destination = "https://mirror.example.com/cc"
)

func TestTextReplacesEveryOccurrence(t *testing.T) {
	in := `GCS_BUCKET="` + origin + `"
curl -fsSL "` + origin + `/stable"
echo "$GCS_BUCKET/$version/manifest.json"`

	out := Text(in, origin, destination)
	if Count(out, origin) != 0 {
		t.Fatalf("origin still present after rewrite: %q", out)
	}
	if got := Count(out, destination); got != 2 {
		t.Fatalf("expected 2 destination references, got %d", got)
	}
	if !strings.Contains(out, `echo "$GCS_BUCKET/$version/manifest.json"`) {
		t.Fatalf("unrelated lines must be untouched: %q", out)
	}
}

func TestTextIsVerbatim(t *testing.T) {
	// Trailing slashes and case differences are not canonicalised.
	in := "A=" + origin + "/\nB=" + strings.ToUpper(origin)
	out := Text(in, origin, destination)
	want := "A=" + destination + "/\nB=" + strings.ToUpper(origin)
	if out != want {
		t.Fatalf("expected %q, got %q", want, out)
	}
}

func TestTextMultiByteNeighbours(t *testing.T) {
	in := "下载地址：" + origin + "。完成"
	out := Text(in, origin, destination)
	if out != "下载地址："+destination+"。完成" {
		t.Fatalf("unexpected rewrite: %q", out)
	}
}

func TestTextEmptyOrigin(t *testing.T) {
	if got := Text("abc", "", "x"); got != "abc" {
		t.Fatalf("empty origin must leave text unchanged, got %q", got)
	}
}

func TestDecodeRejectsInvalidUTF8(t *testing.T) {
	if _, err := Decode([]byte("echo ok\n"), "install.sh"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := Decode([]byte{0xff, 0xfe, 'a'}, "install.ps1")
	var re *failure.ResolutionError
	if !errors.As(err, &re) {
		t.Fatalf("expected ResolutionError, got %v", err)
	}
}
