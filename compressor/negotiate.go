package compressor

import (
	"strconv"
	"strings"
)

// preference order when the client accepts several encodings equally
var preferred = []ContentEncoding{
	ContentEncodingBrotli,
	ContentEncodingGzip,
	ContentEncodingDeflate,
}

// Negotiate picks an encoding from an Accept-Encoding header value.
// Encodings listed with q=0 are refused; "*" accepts any encoding not
// listed explicitly. It returns ContentEncodingPlain when nothing matches.
func Negotiate(acceptEncoding string) ContentEncoding {
	if acceptEncoding == "" {
		return ContentEncodingPlain
	}

	weights := map[string]float64{}
	wildcard := -1.0
	for _, part := range strings.Split(acceptEncoding, ",") {
		name, q := parseCoding(part)
		if name == "" {
			continue
		}
		if name == "*" {
			wildcard = q
			continue
		}
		weights[name] = q
	}

	best, bestQ := ContentEncodingPlain, 0.0
	for _, enc := range preferred {
		q, ok := weights[enc.String()]
		if !ok {
			q = wildcard
		}
		if q > bestQ {
			best, bestQ = enc, q
		}
	}
	return best
}

func parseCoding(part string) (string, float64) {
	fields := strings.Split(part, ";")
	name := strings.ToLower(strings.TrimSpace(fields[0]))
	q := 1.0
	for _, param := range fields[1:] {
		k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || strings.ToLower(strings.TrimSpace(k)) != "q" {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return "", 0
		}
		q = f
	}
	return name, q
}
