package ledger

import (
	"bufio"
	"io"
	"strings"
	"time"

	"tally/internal/core"
)

// UnknownCategory names categories that are missing or deleted.
const UnknownCategory = "Unknown"

// ExportHeader is the first row of every export.
var ExportHeader = []string{"Date", "Type", "Amount", "Category", "Note", "Payment Method"}

// ExportRows renders transactions as export rows, header first. Dates are
// the calendar day in loc; a nil loc keeps each date's stored offset.
func ExportRows(txs []core.Transaction, cats []core.Category, loc *time.Location) [][]string {
	names := categoryNames(cats)
	rows := make([][]string, 0, len(txs)+1)
	rows = append(rows, append([]string(nil), ExportHeader...))
	for _, tx := range txs {
		rows = append(rows, []string{
			exportDate(tx.Date, loc),
			string(tx.Type),
			tx.Amount().Major(),
			nameOr(names, tx.CategoryID),
			tx.Note,
			string(tx.PaymentMethod),
		})
	}
	return rows
}

func exportDate(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(time.DateOnly)
}

// ExportCSV writes transactions as CSV with every field double-quoted.
// encoding/csv only quotes when needed, so quoting is done here.
func ExportCSV(w io.Writer, txs []core.Transaction, cats []core.Category, loc *time.Location) error {
	bw := bufio.NewWriter(w)
	for i, row := range ExportRows(txs, cats, loc) {
		if i > 0 {
			if err := bw.WriteByte('\n'); err != nil {
				return err
			}
		}
		for j, field := range row {
			if j > 0 {
				if err := bw.WriteByte(','); err != nil {
					return err
				}
			}
			if _, err := bw.WriteString(quote(field)); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

func quote(field string) string {
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}

// ExportFilename names an export made at now.
func ExportFilename(now time.Time) string {
	return "transactions-" + now.Format(time.DateOnly) + ".csv"
}
