// Package output persists scraped rate tables.
//
// A Table is written through a Sink. CSVSink writes one file per currency
// and date range:
//
//	[2024-03-01] [2024-03-03] USD.csv
//
// Files are written to a temporary file and renamed into place, so a failed
// write never leaves a partial file behind. PostgresSink stores the same rows
// in a table keyed by currency and date range, replacing previous rows in a
// single transaction. MultiSink writes to several sinks in order.
//
// A table whose header has at most one cell is the server's "no records"
// answer and is written as the single row "No records found!".
package output
