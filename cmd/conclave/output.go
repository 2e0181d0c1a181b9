package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

const (
	colorOK   = color.FgGreen
	colorWarn = color.FgYellow
	colorFail = color.FgRed
	colorInfo = color.FgCyan
)

// printStatus prints a colored status symbol followed by a message.
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// heading prints a bold section title.
func heading(title string) {
	fmt.Println(color.New(color.Bold).Sprint(title))
}

// list prints items indented under a heading, or "(none)".
func list(items []string) {
	if len(items) == 0 {
		fmt.Println("  (none)")
		return
	}
	for _, it := range items {
		fmt.Printf("  - %s\n", it)
	}
}

// splitList splits a comma-separated flag value, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
