package main

import (
	"fmt"
	"os"
)

// ANSI escapes for terminal output. All human-facing status goes to stderr so
// stdout stays clean for piping command output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", colorize(colorGreen, "ok"), fmt.Sprintf(format, args...))
}

func printError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", colorize(colorRed, "error"), fmt.Sprintf(format, args...))
}

func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", colorize(colorBold, label), fmt.Sprintf(format, args...))
}
