package report

import (
	"fmt"
	"io"
	"strings"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 출력이 동일한 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

const (
	doubleRule = "═══════════════════════════════════════════════════════════"
	singleRule = "───────────────────────────────────────────────────────────"
)

// table writes fixed-width columns separated by two spaces
type table struct {
	w       io.Writer
	columns []string
	widths  []int
}

func newTable(w io.Writer, columns []string, widths []int) *table {
	return &table{w: w, columns: columns, widths: widths}
}

func (t *table) header() {
	t.row(t.columns...)
	total := 0
	for i, width := range t.widths {
		total += width
		if i < len(t.widths)-1 {
			total += 2
		}
	}
	fmt.Fprintln(t.w, strings.Repeat("─", total))
}

func (t *table) row(values ...string) {
	for i, val := range values {
		if i < len(values)-1 {
			fmt.Fprintf(t.w, "%-*s  ", t.widths[i], val)
		} else {
			fmt.Fprintf(t.w, "%-*s", t.widths[i], val)
		}
	}
	fmt.Fprintln(t.w)
}

func title(w io.Writer, text string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, doubleRule)
	fmt.Fprintf(w, "  %s\n", text)
	fmt.Fprintln(w, singleRule)
}

func keyValue(w io.Writer, key, value string) {
	fmt.Fprintf(w, "  %-12s : %s\n", key, value)
}

func warning(w io.Writer, message string) {
	fmt.Fprintf(w, "⚠️  %s\n", message)
}

func pct(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

func signedPct(v float64) string {
	return fmt.Sprintf("%+.2f%%", v*100)
}
