package main

import (
	"fmt"
	"os"
)

// style is an ANSI SGR sequence applied to user-facing labels. Styling is
// dropped when --no-color is set or the NO_COLOR convention is in effect.
type style string

const (
	styleBold   style = "\033[1m"
	styleRed    style = "\033[31m"
	styleGreen  style = "\033[32m"
	styleYellow style = "\033[33m"
	styleCyan   style = "\033[36m"

	styleReset = "\033[0m"
)

func colorEnabled() bool {
	if noColor {
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return true
}

func (s style) apply(text string) string {
	if !colorEnabled() {
		return text
	}
	return string(s) + text + styleReset
}

// Status output goes to stderr so stdout stays pipeable (JSONL export,
// report text).

func printSuccess(format string, args ...any) {
	fmt.Fprintln(os.Stderr, styleGreen.apply("✓ "+fmt.Sprintf(format, args...)))
}

func printError(format string, args ...any) {
	fmt.Fprintln(os.Stderr, styleRed.apply("✗ "+fmt.Sprintf(format, args...)))
}

func printWarning(format string, args ...any) {
	fmt.Fprintln(os.Stderr, styleYellow.apply("⚠ "+fmt.Sprintf(format, args...)))
}

func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", styleBold.apply(label+":"), fmt.Sprintf(format, args...))
}
