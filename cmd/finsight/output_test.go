package main

import (
	"strings"
	"testing"
)

func TestStyleApply(t *testing.T) {
	orig := noColor
	defer func() { noColor = orig }()

	noColor = false
	t.Setenv("NO_COLOR", "")
	got := styleGreen.apply("ok")
	if !strings.HasPrefix(got, string(styleGreen)) || !strings.HasSuffix(got, styleReset) {
		t.Errorf("apply = %q, want wrapped in escape codes", got)
	}

	noColor = true
	if got := styleGreen.apply("ok"); got != "ok" {
		t.Errorf("apply with --no-color = %q, want bare text", got)
	}
}

func TestStyleHonorsNoColorEnv(t *testing.T) {
	orig := noColor
	defer func() { noColor = orig }()
	noColor = false

	t.Setenv("NO_COLOR", "1")
	if got := styleBold.apply("label"); got != "label" {
		t.Errorf("apply with NO_COLOR set = %q, want bare text", got)
	}
}

func TestStatusLabelKnownValues(t *testing.T) {
	for _, status := range []string{"pending", "processing", "completed", "failed", "unheard-of"} {
		if statusLabel(status) == "" {
			t.Errorf("statusLabel(%q) is empty", status)
		}
	}
}
