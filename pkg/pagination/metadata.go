package pagination

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Script tokens carrying the paging state.
const (
	RecordCountToken = "var m_nRecordCount = "
	PageSizeToken    = "var m_nPageSize = "
)

// Metadata holds the paging signals found in a document. A nil field means
// the signal was absent or unreadable.
type Metadata struct {
	TotalRecords *int
	PageSize     *int
}

// Complete reports whether both signals were found.
func (m Metadata) Complete() bool {
	return m.TotalRecords != nil && m.PageSize != nil
}

// TotalPages returns ceil(TotalRecords / PageSize), never less than 1.
func (m Metadata) TotalPages() int {
	if !m.Complete() || *m.PageSize <= 0 || *m.TotalRecords <= 0 {
		return 1
	}
	return (*m.TotalRecords + *m.PageSize - 1) / *m.PageSize
}

// ParseMetadata scans script blocks line by line for the paging tokens. The
// first readable value of each token wins and scanning stops once both are known.
func ParseMetadata(scripts []string) Metadata {
	var meta Metadata

	for _, script := range scripts {
		for _, line := range strings.Split(script, "\n") {
			if meta.TotalRecords == nil {
				meta.TotalRecords = parseToken(line, RecordCountToken)
			}
			if meta.PageSize == nil {
				meta.PageSize = parseToken(line, PageSizeToken)
			}
			if meta.Complete() {
				return meta
			}
		}
	}

	return meta
}

// DerivePageCount returns the number of result pages described by the scripts.
func DerivePageCount(scripts []string) int {
	return ParseMetadata(scripts).TotalPages()
}

// parseToken returns the integer assigned after token on line, or nil.
func parseToken(line, token string) *int {
	idx := strings.Index(line, token)
	if idx < 0 {
		return nil
	}

	raw := strings.TrimSpace(line[idx+len(token):])
	raw = strings.TrimSpace(strings.TrimSuffix(raw, ";"))

	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Debug().
			Str("token", strings.TrimSpace(token)).
			Str("value", raw).
			Msg("Page metadata value is not a number")
		return nil
	}
	return &n
}
