package mqttjson

import (
	"bytes"
	"encoding/json"
	"net/url"

	"github.com/cockroachdb/errors"
	"github.com/xizhibei/go-httpcalc/compressor"
)

var (
	// ErrInvalidParams is returned when params is neither an object nor null.
	ErrInvalidParams = errors.New("[HTTPCALC] params must be a JSON object")

	// ErrInvalidEncoding is returned for an unknown encoding or a body that does not decode with it.
	ErrInvalidEncoding = errors.New("[HTTPCALC] invalid encoding")
)

// Request is the payload published on <prefix>/request/<id>.
// With Encoding set to gzip, deflate or br, Params holds the compressed
// params JSON as a base64 string and the reply data is encoded the same way.
type Request struct {
	ID       uint64            `json:"id"`
	Method   string            `json:"method"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Encoding string            `json:"encoding,omitempty"`
	Params   json.RawMessage   `json:"params,omitempty"`
}

// Response is the payload published on <prefix>/response/<id>.
type Response struct {
	ID       uint64            `json:"id"`
	Method   string            `json:"method"`
	Status   int               `json:"status"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Encoding string            `json:"encoding,omitempty"`
	Data     json.RawMessage   `json:"data"`
}

// ErrorData is the data of a response whose status is not 200.
type ErrorData struct {
	Message string `json:"message"`
}

// Query turns params into query values. Strings are taken verbatim, null
// means absent and any other JSON value keeps its literal text.
func (r *Request) Query() (url.Values, error) {
	values := url.Values{}

	raw := bytes.TrimSpace(r.Params)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return values, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode params"), ErrInvalidParams)
	}

	for key, field := range fields {
		field = bytes.TrimSpace(field)
		switch {
		case bytes.Equal(field, []byte("null")):
			continue
		case len(field) > 0 && field[0] == '"':
			var s string
			if err := json.Unmarshal(field, &s); err != nil {
				return nil, errors.Mark(errors.Wrapf(err, "decode param %s", key), ErrInvalidParams)
			}
			values.Set(key, s)
		default:
			values.Set(key, string(field))
		}
	}
	return values, nil
}

// EncodeData compresses raw with enc and wraps the result as a base64 JSON string.
// Plain or empty data is returned unchanged.
func EncodeData(m *compressor.CompressorManager, enc compressor.ContentEncoding, raw json.RawMessage) (json.RawMessage, error) {
	if enc == compressor.ContentEncodingPlain || len(raw) == 0 {
		return raw, nil
	}

	compressed, err := m.Compress(enc, raw)
	if err != nil {
		return nil, errors.Wrapf(err, "compress %s", enc)
	}
	data, err := json.Marshal(compressed)
	if err != nil {
		return nil, errors.Wrap(err, "encode compressed data")
	}
	return data, nil
}

// DecodeData reverses EncodeData. Empty and null data are returned unchanged.
func DecodeData(m *compressor.CompressorManager, enc compressor.ContentEncoding, data json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if enc == compressor.ContentEncodingPlain || len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return data, nil
	}

	var compressed []byte
	if err := json.Unmarshal(trimmed, &compressed); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode compressed data"), ErrInvalidEncoding)
	}
	raw, err := m.Decompress(enc, compressed)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "decompress %s", enc), ErrInvalidEncoding)
	}
	return raw, nil
}
