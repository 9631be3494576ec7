package compressor

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/cockroachdb/errors"
)

type ContentEncoding int

const (
	ContentEncodingGzip    ContentEncoding = 0
	ContentEncodingDeflate ContentEncoding = 1
	ContentEncodingBrotli  ContentEncoding = 2
	ContentEncodingPlain   ContentEncoding = 3
)

var (
	ErrUnknownContentEncoding = errors.New("[HTTPCALC] unknown content encoding")
)

// String returns the HTTP Content-Encoding token.
func (e ContentEncoding) String() string {
	switch e {
	case ContentEncodingGzip:
		return "gzip"
	case ContentEncodingDeflate:
		return "deflate"
	case ContentEncodingBrotli:
		return "br"
	case ContentEncodingPlain:
		return "identity"
	}
	return "unknown"
}

// ParseContentEncoding maps a Content-Encoding token to a ContentEncoding.
// The empty token and "identity" mean plain.
func ParseContentEncoding(token string) (ContentEncoding, error) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "", "identity":
		return ContentEncodingPlain, nil
	case "gzip":
		return ContentEncodingGzip, nil
	case "deflate":
		return ContentEncodingDeflate, nil
	case "br":
		return ContentEncodingBrotli, nil
	}
	return ContentEncodingPlain, errors.Wrapf(ErrUnknownContentEncoding, "%q", token)
}

// CompressorManager pools compression writers and buffers. It is safe for concurrent use.
type CompressorManager struct {
	byteReaderPool   sync.Pool
	bufferPool       sync.Pool
	gzipWriterPool   sync.Pool
	zlibWriterPool   sync.Pool
	brotliWriterPool sync.Pool
}

func NewCompressorManager() *CompressorManager {
	return &CompressorManager{
		byteReaderPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewReader(nil)
			},
		},
		gzipWriterPool: sync.Pool{
			New: func() interface{} {
				return gzip.NewWriter(nil)
			},
		},
		zlibWriterPool: sync.Pool{
			New: func() interface{} {
				return zlib.NewWriter(nil)
			},
		},
		brotliWriterPool: sync.Pool{
			New: func() interface{} {
				return brotli.NewWriter(nil)
			},
		},
		bufferPool: sync.Pool{
			New: func() interface{} {
				return new(bytes.Buffer)
			},
		},
	}
}

func (c *CompressorManager) Compress(tp ContentEncoding, data []byte) ([]byte, error) {
	if data == nil {
		return nil, nil
	}

	switch tp {
	case ContentEncodingGzip:
		return c.GzipCompress(data)
	case ContentEncodingDeflate:
		return c.ZlibCompress(data)
	case ContentEncodingBrotli:
		return c.BrotliCompress(data)
	case ContentEncodingPlain:
		return data, nil
	default:
		return nil, ErrUnknownContentEncoding
	}
}

func (c *CompressorManager) Decompress(tp ContentEncoding, data []byte) ([]byte, error) {
	if data == nil {
		return nil, nil
	}

	switch tp {
	case ContentEncodingGzip:
		return c.GzipDecompress(data)
	case ContentEncodingDeflate:
		return c.ZlibDecompress(data)
	case ContentEncodingBrotli:
		return c.BrotliDecompress(data)
	case ContentEncodingPlain:
		return data, nil
	default:
		return nil, ErrUnknownContentEncoding
	}
}

// finish copies the compressed bytes out so the pooled buffer can be reused.
func (c *CompressorManager) finish(buf *bytes.Buffer) []byte {
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	c.bufferPool.Put(buf)
	return out
}

func (c *CompressorManager) GzipDecompress(data []byte) ([]byte, error) {
	byteReader := c.byteReaderPool.Get().(*bytes.Reader)
	defer c.byteReaderPool.Put(byteReader)
	byteReader.Reset(data)

	reader, err := gzip.NewReader(byteReader)
	if err != nil {
		return nil, errors.Wrap(err, "gzip reader")
	}
	defer reader.Close()

	return io.ReadAll(reader)
}

func (c *CompressorManager) GzipCompress(data []byte) ([]byte, error) {
	writer := c.gzipWriterPool.Get().(*gzip.Writer)
	defer c.gzipWriterPool.Put(writer)

	buf := c.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	writer.Reset(buf)

	if _, err := writer.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return c.finish(buf), nil
}

func (c *CompressorManager) ZlibDecompress(data []byte) ([]byte, error) {
	byteReader := c.byteReaderPool.Get().(*bytes.Reader)
	defer c.byteReaderPool.Put(byteReader)
	byteReader.Reset(data)

	reader, err := zlib.NewReader(byteReader)
	if err != nil {
		return nil, errors.Wrap(err, "zlib reader")
	}
	defer reader.Close()

	return io.ReadAll(reader)
}

func (c *CompressorManager) ZlibCompress(data []byte) ([]byte, error) {
	writer := c.zlibWriterPool.Get().(*zlib.Writer)
	defer c.zlibWriterPool.Put(writer)

	buf := c.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	writer.Reset(buf)

	if _, err := writer.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return c.finish(buf), nil
}

func (c *CompressorManager) BrotliDecompress(data []byte) ([]byte, error) {
	byteReader := c.byteReaderPool.Get().(*bytes.Reader)
	defer c.byteReaderPool.Put(byteReader)
	byteReader.Reset(data)

	return io.ReadAll(brotli.NewReader(byteReader))
}

func (c *CompressorManager) BrotliCompress(data []byte) ([]byte, error) {
	writer := c.brotliWriterPool.Get().(*brotli.Writer)
	defer c.brotliWriterPool.Put(writer)

	buf := c.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	writer.Reset(buf)

	if _, err := writer.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return c.finish(buf), nil
}
