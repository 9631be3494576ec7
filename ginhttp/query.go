package ginhttp

import (
	"net/url"
	"strings"
)

// parseQuery decodes an application/x-www-form-urlencoded query string.
// Unlike url.ParseQuery it never drops a pair: a key or value whose percent
// escapes are malformed keeps its literal text, so the handler still sees
// the parameter and can reject its value.
func parseQuery(raw string) url.Values {
	values := url.Values{}
	for raw != "" {
		var pair string
		pair, raw, _ = strings.Cut(raw, "&")
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		values.Add(unescapeLenient(key), unescapeLenient(value))
	}
	return values
}

func unescapeLenient(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return strings.ReplaceAll(s, "+", " ")
}
