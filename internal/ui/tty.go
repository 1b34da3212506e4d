package ui

import (
	"os"

	"github.com/mattn/go-isatty"
)

// IsTTY reports whether f is attached to a terminal. Interactive elements
// (progress display, approval list) are skipped when it returns false.
func IsTTY(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
