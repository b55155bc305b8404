package gfab

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var countPrinter = message.NewPrinter(language.English)

// formatCount renders row counts with thousands separators for log lines.
func formatCount(n int64) string {
	return countPrinter.Sprintf("%d", n)
}
