package ginhttp

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/xizhibei/go-httpcalc/compressor"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// HeaderRequestID carries the request identifier in both directions.
const HeaderRequestID = "X-Request-ID"

const (
	requestIDKey       = "httpcalc.request_id"
	maxRequestIDLength = 128
)

// requestID keeps a client supplied X-Request-ID or generates one, and echoes it back.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

func accessLog(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Infow("Request",
			"request_id", c.GetString(requestIDKey),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"size", c.Writer.Size(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

func recovery(log *zap.SugaredLogger) gin.HandlerFunc {
	stackLog := log.Desugar().WithOptions(zap.AddStacktrace(zapcore.ErrorLevel)).Sugar()
	return func(c *gin.Context) {
		defer func() {
			if i := recover(); i != nil {
				stackLog.Errorf("panic in %s %s: %v", c.Request.Method, c.Request.URL.Path, i)
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

// compressWriter holds the body until the handler chain returns so it can be encoded in one piece.
type compressWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *compressWriter) Write(data []byte) (int, error) {
	return w.buf.Write(data)
}

func (w *compressWriter) WriteString(s string) (int, error) {
	return w.buf.WriteString(s)
}

// WriteHeaderNow is deferred to flush so Content-Encoding can still be set.
func (w *compressWriter) WriteHeaderNow() {}

func (w *compressWriter) Flush() {}

func (w *compressWriter) flush(m *compressor.CompressorManager, enc compressor.ContentEncoding, minLength int) {
	if w.buf.Len() == 0 {
		return
	}

	body := w.buf.Bytes()
	if len(body) >= minLength && w.Header().Get("Content-Encoding") == "" {
		compressed, err := m.Compress(enc, body)
		if err == nil {
			w.Header().Set("Content-Encoding", enc.String())
			w.Header().Del("Content-Length")
			body = compressed
		} else {
			zap.S().Warnw("Compression failed, sending plain body", "module", "httpcalc.ginhttp", "encoding", enc.String(), "error", err)
		}
	}

	_, _ = w.ResponseWriter.Write(body)
}

// compress encodes response bodies with the best encoding the client accepts.
// Bodies shorter than minLength are sent as is.
func compress(m *compressor.CompressorManager, minLength int) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Add("Vary", "Accept-Encoding")

		enc := compressor.Negotiate(c.GetHeader("Accept-Encoding"))
		if enc == compressor.ContentEncodingPlain || c.Request.Method == http.MethodHead {
			c.Next()
			return
		}

		w := &compressWriter{ResponseWriter: c.Writer}
		c.Writer = w
		defer func() {
			c.Writer = w.ResponseWriter
			w.flush(m, enc, minLength)
		}()

		c.Next()
	}
}
