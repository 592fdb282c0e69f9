// Package testutil provides testing utilities for the rate scraper.
package testutil

import (
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultHeader is the rates table header rendered for currencies with data.
var DefaultHeader = []string{
	"Currency Name", "Buying Rate", "Cash Buying Rate", "Selling Rate",
	"Cash Selling Rate", "Middle Rate", "Pub Time",
}

// pageKey identifies one result page.
type pageKey struct {
	currency string
	page     int
}

// MockBank is a configurable mock of the rate search server. GET requests
// return the search form; POST requests return one page of results for the
// posted currency.
type MockBank struct {
	server   *httptest.Server
	mu       sync.Mutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	options  []string
	rates    map[string][][]string
	pageSize int
	delay    time.Duration
	failures map[pageKey][]int

	// Tracking
	requestCount  int
	pageRequests  map[pageKey]int
	forms         []url.Values
	inFlight      map[string]int
	peakInFlight  map[string]int
	totalInFlight int
	peakTotal     int
}

// NewMockBank creates a new mock search server with a page size of 20.
func NewMockBank() *MockBank {
	mock := &MockBank{
		handlers:     make(map[string]func(w http.ResponseWriter, r *http.Request)),
		rates:        make(map[string][][]string),
		pageSize:     20,
		failures:     make(map[pageKey][]int),
		pageRequests: make(map[pageKey]int),
		inFlight:     make(map[string]int),
		peakInFlight: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the search page URL.
func (m *MockBank) URL() string {
	return m.server.URL + "/search/whpj/searchen.jsp"
}

// Close shuts down the mock server.
func (m *MockBank) Close() {
	m.server.Close()
}

// SetHandler sets a custom handler for a specific path.
func (m *MockBank) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetOptions sets the raw option values of the currency select, sentinel
// "0" included if wanted.
func (m *MockBank) SetOptions(values ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.options = append([]string(nil), values...)
}

// SetRates sets every data row for a currency. Rows are split into pages of
// the configured page size. A currency without rows answers "no records".
func (m *MockBank) SetRates(currency string, rows [][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rates[currency] = rows
}

// SetPageSize sets the number of rows per page.
func (m *MockBank) SetPageSize(size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageSize = size
}

// SetDelay delays every result page response.
func (m *MockBank) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// FailPage makes the next requests for a page answer with the given statuses
// before the page is served normally.
func (m *MockBank) FailPage(currency string, page int, statuses ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pageKey{currency, page}
	m.failures[key] = append(m.failures[key], statuses...)
}

// RequestCount returns the number of requests made to the server.
func (m *MockBank) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// PageRequests returns how often a currency page was requested.
func (m *MockBank) PageRequests(currency string, page int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pageRequests[pageKey{currency, page}]
}

// Forms returns a copy of every posted form, in arrival order.
func (m *MockBank) Forms() []url.Values {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]url.Values, len(m.forms))
	copy(out, m.forms)
	return out
}

// PeakInFlight returns the highest number of concurrent result page
// requests seen for a currency.
func (m *MockBank) PeakInFlight(currency string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peakInFlight[currency]
}

// PeakTotalInFlight returns the highest number of concurrent result page
// requests across all currencies.
func (m *MockBank) PeakTotalInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peakTotal
}

// GenerateRows returns n distinct rows for a currency in server order.
func GenerateRows(currency string, n int) [][]string {
	rows := make([][]string, n)
	for i := 0; i < n; i++ {
		rows[i] = []string{
			currency,
			fmt.Sprintf("%d.%02d", 700+i/100, i%100),
			"", "", "", "",
			fmt.Sprintf("2024.03.03 %02d:%02d:00", 23-(i/60)%24, 59-i%60),
		}
	}
	return rows
}

// defaultHandler serves the search form and result pages.
func (m *MockBank) defaultHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		m.mu.Lock()
		options := append([]string(nil), m.options...)
		m.mu.Unlock()

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(RenderPage(options, nil, nil, nil)))
		return
	}

	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	currency := r.PostForm.Get("pjname")
	page := 1
	if p := r.PostForm.Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		page = n
	}
	key := pageKey{currency, page}

	m.mu.Lock()
	m.pageRequests[key]++
	m.forms = append(m.forms, r.PostForm)
	m.inFlight[currency]++
	if m.inFlight[currency] > m.peakInFlight[currency] {
		m.peakInFlight[currency] = m.inFlight[currency]
	}
	m.totalInFlight++
	if m.totalInFlight > m.peakTotal {
		m.peakTotal = m.totalInFlight
	}
	delay := m.delay
	status := http.StatusOK
	if queued := m.failures[key]; len(queued) > 0 {
		status = queued[0]
		m.failures[key] = queued[1:]
	}
	rows, known := m.rates[currency]
	pageSize := m.pageSize
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight[currency]--
		m.totalInFlight--
		m.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if status != http.StatusOK {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(http.StatusText(status)))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	if !known || len(rows) == 0 {
		_, _ = w.Write([]byte(RenderPage(nil, []string{"sorry, no records!"}, nil, &Meta{TotalRecords: 0, PageSize: pageSize})))
		return
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(rows) {
		start = len(rows)
	}
	if end > len(rows) {
		end = len(rows)
	}

	meta := &Meta{TotalRecords: len(rows), PageSize: pageSize}
	_, _ = w.Write([]byte(RenderPage(nil, DefaultHeader, rows[start:end], meta)))
}

// Meta holds the paging script values rendered into a page.
type Meta struct {
	TotalRecords int
	PageSize     int
}

// RenderPage renders a search page. options fill the currency select; a nil
// header omits the rates table entirely; a nil meta omits the paging script.
func RenderPage(options []string, header []string, rows [][]string, meta *Meta) string {
	var b strings.Builder

	b.WriteString("<html><head>\n")
	if meta != nil {
		b.WriteString("<script type=\"text/javascript\">\n")
		fmt.Fprintf(&b, "\tvar m_nRecordCount = %d;\n", meta.TotalRecords)
		fmt.Fprintf(&b, "\tvar m_nPageSize = %d;\n", meta.PageSize)
		b.WriteString("</script>\n")
	}
	b.WriteString("</head><body>\n")

	b.WriteString("<form method=\"post\"><select name=\"pjname\">\n")
	for _, o := range options {
		fmt.Fprintf(&b, "<option value=\"%s\">%s</option>\n", html.EscapeString(o), html.EscapeString(o))
	}
	b.WriteString("</select></form>\n")

	b.WriteString("<table class=\"layout\"><tr><td>Bank</td></tr></table>\n")
	b.WriteString("<table class=\"search\"><tr><td>Search</td></tr></table>\n")

	if header != nil {
		b.WriteString("<table class=\"rates\">\n")
		writeRow(&b, header)
		for _, row := range rows {
			writeRow(&b, row)
		}
		b.WriteString("</table>\n")
	}

	b.WriteString("</body></html>\n")
	return b.String()
}

func writeRow(b *strings.Builder, cells []string) {
	b.WriteString("<tr>")
	for _, c := range cells {
		fmt.Fprintf(b, "<td>%s</td>", html.EscapeString(c))
	}
	b.WriteString("</tr>\n")
}
