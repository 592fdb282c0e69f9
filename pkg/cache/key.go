package cache

import (
	"net/url"
	"sort"
	"strings"
)

// CacheKey identifies one request to the search server.
type CacheKey struct {
	// Method is the HTTP method (GET or POST)
	Method string

	// URL is the request URL without the form parameters
	URL string

	// Form holds the form or query parameters
	Form url.Values
}

// String generates a deterministic cache key string.
// Format: fx:METHOD:url:param1=val1:param2=val2
//
// Example:
//
//	fx:POST:https://srh.bankofchina.com/search/whpj/searchen.jsp:page=2:pjname=USD
func (k CacheKey) String() string {
	parts := []string{"fx", strings.ToUpper(k.Method)}

	if u := strings.TrimRight(k.URL, "/"); u != "" {
		parts = append(parts, u)
	}

	if len(k.Form) > 0 {
		keys := make([]string, 0, len(k.Form))
		for key := range k.Form {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			parts = append(parts, key+"="+strings.Join(k.Form[key], ","))
		}
	}

	return strings.Join(parts, ":")
}
