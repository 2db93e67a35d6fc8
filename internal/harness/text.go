package harness

import (
	"fmt"
	"io"
	"strings"
)

// TextStyle decorates the pass and fail marks of the text report.
type TextStyle struct {
	Pass func(a ...any) string
	Fail func(a ...any) string
}

// PlainStyle renders marks without decoration.
var PlainStyle = TextStyle{Pass: fmt.Sprint, Fail: fmt.Sprint}

// WriteText renders rep in the console format: one line per row with its
// parameters padded to 70 columns, followed by PASSED! or by one indented
// line per discrepancy.
func WriteText(w io.Writer, rep *RunReport, style TextStyle) error {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s (%s, %d expectations)\n", rep.ID, rep.Subject, rep.CatalogSize)
	for _, row := range rep.Rows {
		writeRow(&b, fmt.Sprintf("%2d", row.Index), row, style)
	}
	for i, p := range rep.Probes {
		writeRow(&b, fmt.Sprintf("p%d", i+1), p, style)
	}
	fmt.Fprintf(&b, "%d/%d passed\n", rep.Total()-rep.Failed(), rep.Total())
	_, err := io.WriteString(w, b.String())
	return err
}

func writeRow(b *strings.Builder, index string, row RowResult, style TextStyle) {
	label := fmt.Sprintf("[%s] %-70s", index, row.Label)
	if row.Pass {
		fmt.Fprintf(b, "%s %s PASSED!\n", style.Pass("✓"), label)
		return
	}
	fmt.Fprintf(b, "%s %s\n", style.Fail("✗"), strings.TrimRight(label, " "))
	for _, d := range row.Discrepancies {
		fmt.Fprintf(b, "    %s\n", d)
	}
}
