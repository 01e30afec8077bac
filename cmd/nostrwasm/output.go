package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

// report prints a verification result. Colors apply only when w is a
// terminal. A negative result is errInvalid so the process exits non-zero.
func report(w io.Writer, ok bool, detail string) error {
	r := lipgloss.NewRenderer(w)
	if ok {
		fmt.Fprintln(w, r.NewStyle().Bold(true).Foreground(lipgloss.Color("#98FB98")).Render("valid"))
		return nil
	}

	line := r.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B")).Render("invalid")
	if detail != "" {
		line += " " + r.NewStyle().Foreground(lipgloss.Color("#666666")).Render(detail)
	}
	fmt.Fprintln(w, line)
	return errInvalid
}
