package document

// RatesTableIndex is the position of the results table on a search page.
const RatesTableIndex = 2

// Header returns the cell texts of the first row of the rates table. A
// missing table or row yields nil.
func (d *Document) Header() []string {
	table, ok := d.Table(RatesTableIndex)
	if !ok {
		return nil
	}
	rows := table.Rows()
	if len(rows) == 0 {
		return nil
	}
	return rows[0].Texts()
}

// DataRows returns the cell texts of every row after the header in the
// rates table.
func (d *Document) DataRows() [][]string {
	table, ok := d.Table(RatesTableIndex)
	if !ok {
		return nil
	}
	rows := table.Rows()
	if len(rows) < 2 {
		return nil
	}
	data := make([][]string, 0, len(rows)-1)
	for _, r := range rows[1:] {
		data = append(data, r.Texts())
	}
	return data
}
