package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	e := NewError(ErrEmbeddingProvider, "batch failed")
	if e.Error() != "[EMBEDDING_PROVIDER] batch failed" {
		t.Errorf("unexpected message: %s", e.Error())
	}

	cause := fmt.Errorf("connection reset")
	e = e.WithCause(cause)
	if !errors.Is(e, cause) {
		t.Error("expected errors.Is to find the cause")
	}
}

func TestErrorRetryable(t *testing.T) {
	e := NewError(ErrRateLimited, "429").WithRetryable(true)
	if !IsRetryable(e) {
		t.Error("expected retryable")
	}
	if IsRetryable(fmt.Errorf("plain error")) {
		t.Error("plain errors are never retryable")
	}
}

func TestGetErrorCode(t *testing.T) {
	e := NewError(ErrMalformedInput, "no sections").WithDocumentID("primarch")
	if GetErrorCode(e) != ErrMalformedInput {
		t.Errorf("unexpected code: %s", GetErrorCode(e))
	}
	if !IsCode(e, ErrMalformedInput) {
		t.Error("IsCode mismatch")
	}
	if GetErrorCode(fmt.Errorf("plain")) != "" {
		t.Error("plain errors carry no code")
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Roboute Guilliman":    "roboute-guilliman",
		"  Adeptus Custodes  ": "adeptus-custodes",
		"Ork (WAAAGH!)":        "ork-waaagh",
		"":                     "page",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeCategories(t *testing.T) {
	got := NormalizeCategories([]string{" Space Marines ", "space marines", "Primarchs", ""})
	if len(got) != 2 || got[0] != "space marines" || got[1] != "primarchs" {
		t.Errorf("unexpected categories: %v", got)
	}
}
