// Package pagination derives page counts from search result pages and fetches
// the remaining pages of a result set in parallel.
//
// The rate search embeds its paging state in a script block:
//
//	var m_nRecordCount = 45;
//	var m_nPageSize = 20;
//
// DerivePageCount turns those two assignments into a page count, falling back
// to a single page whenever either is missing or unreadable.
//
// Example usage:
//
//	total := pagination.DerivePageCount(doc.Scripts())
//	fetcher := pagination.NewBatchFetcher(pageFetcher, pagination.Config{MaxConcurrency: 2})
//	rows, err := fetcher.FetchRemainingPages(ctx, "USD", firstPageRows, total)
//
// The batch fetcher:
//   - Builds one task per page 2..N, keyed by page number minus one
//   - Runs them through its own scheduler with the configured ceiling
//   - Reassembles the pages by key and flattens them in server order
//   - Fails closed: any page failure fails the whole result set
package pagination
