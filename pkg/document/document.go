// Package document parses rate search pages and exposes the few traversal
// primitives the scraper needs: select options, tables, rows, cells and
// script blocks.
package document

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Document is a parsed HTML page.
type Document struct {
	doc *goquery.Document
}

// Option is one <option> of a <select>.
type Option struct {
	Value string
	Label string
}

// Table is a <table> element. Tables are numbered in document order,
// nested tables included.
type Table struct {
	sel *goquery.Selection
}

// Row is a <tr> element.
type Row struct {
	sel *goquery.Selection
}

// Cell is a <td> element.
type Cell struct {
	sel *goquery.Selection
}

// Parse parses raw HTML.
func Parse(raw []byte) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{doc: doc}, nil
}

// SelectOptions returns every <option> that carries a value attribute.
func (d *Document) SelectOptions() []Option {
	var options []Option
	d.doc.Find("option").Each(func(_ int, s *goquery.Selection) {
		value, ok := s.Attr("value")
		if !ok {
			return
		}
		options = append(options, Option{
			Value: strings.TrimSpace(value),
			Label: strings.TrimSpace(s.Text()),
		})
	})
	return options
}

// Table returns the table at index i, or false if the page has fewer tables.
func (d *Document) Table(i int) (Table, bool) {
	tables := d.doc.Find("table")
	if i < 0 || i >= tables.Length() {
		return Table{}, false
	}
	return Table{sel: tables.Eq(i)}, true
}

// Scripts returns the text of every <script> block.
func (d *Document) Scripts() []string {
	var scripts []string
	d.doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		scripts = append(scripts, s.Text())
	})
	return scripts
}

// Rows returns every <tr> within the table.
func (t Table) Rows() []Row {
	if t.sel == nil {
		return nil
	}
	var rows []Row
	t.sel.Find("tr").Each(func(_ int, s *goquery.Selection) {
		rows = append(rows, Row{sel: s})
	})
	return rows
}

// Cells returns every <td> within the row.
func (r Row) Cells() []Cell {
	var cells []Cell
	r.sel.Find("td").Each(func(_ int, s *goquery.Selection) {
		cells = append(cells, Cell{sel: s})
	})
	return cells
}

// Texts returns the text of every cell in the row.
func (r Row) Texts() []string {
	cells := r.Cells()
	texts := make([]string, len(cells))
	for i, c := range cells {
		texts[i] = c.Text()
	}
	return texts
}

// Text returns the cell text with surrounding whitespace removed.
func (c Cell) Text() string {
	return strings.TrimSpace(c.sel.Text())
}
