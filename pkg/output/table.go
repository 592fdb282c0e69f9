package output

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the date format used in requests and file names.
const DateLayout = "2006-01-02"

// NoRecordsMarker is written in place of data when the server found nothing.
const NoRecordsMarker = "No records found!"

// DateRange is the inclusive query window.
type DateRange struct {
	Low  time.Time
	High time.Time
}

// NewDateRange returns the window ending on the day of now and starting
// lookbackDays earlier.
func NewDateRange(now time.Time, lookbackDays int) DateRange {
	return DateRange{
		Low:  now.AddDate(0, 0, -lookbackDays),
		High: now,
	}
}

// LowString formats the lower bound.
func (r DateRange) LowString() string {
	return r.Low.Format(DateLayout)
}

// HighString formats the upper bound.
func (r DateRange) HighString() string {
	return r.High.Format(DateLayout)
}

// String implements fmt.Stringer.
func (r DateRange) String() string {
	return r.LowString() + ".." + r.HighString()
}

// Table is the complete result for one currency.
type Table struct {
	Currency string
	Range    DateRange
	Header   []string
	Rows     [][]string
}

// NoData reports whether the server returned its "no records" header.
func (t *Table) NoData() bool {
	return len(t.Header) <= 1
}

// Records returns the CSV records for the table, header first.
func (t *Table) Records() [][]string {
	if t.NoData() {
		return [][]string{{NoRecordsMarker}}
	}

	records := make([][]string, 0, len(t.Rows)+1)
	records = append(records, t.Header)
	records = append(records, t.Rows...)
	return records
}

// FileName returns the output file name for the table.
func FileName(t *Table) (string, error) {
	if t.Currency == "" || strings.ContainsAny(t.Currency, `/\`) || strings.Contains(t.Currency, "..") {
		return "", fmt.Errorf("invalid currency for file name: %q", t.Currency)
	}
	return fmt.Sprintf("[%s] [%s] %s.csv", t.Range.LowString(), t.Range.HighString(), t.Currency), nil
}

// Sink receives finished tables. Implementations must be safe for concurrent
// use by different currencies.
type Sink interface {
	Write(ctx context.Context, t *Table) error
}
