package ginhttp_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
	"github.com/xizhibei/go-httpcalc"
	"github.com/xizhibei/go-httpcalc/calc"
	"github.com/xizhibei/go-httpcalc/ginhttp"
	"github.com/xizhibei/go-httpcalc/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type GinServerTestSuite struct {
	suite.Suite
	server  *ginhttp.Server
	handler http.Handler
}

func (suite *GinServerTestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(log)
}

func (suite *GinServerTestSuite) SetupTest() {
	suite.server = ginhttp.New(
		ginhttp.WithServerOptions(
			httpcalc.WithServerName("test"),
			httpcalc.WithWorkerNum(4),
		),
	)
	calc.Register(suite.server, 0)
	suite.handler = suite.server.Handler()
}

func (suite *GinServerTestSuite) TearDownTest() {
	suite.NoError(suite.server.Close())
}

func (suite *GinServerTestSuite) do(method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	suite.handler.ServeHTTP(w, req)
	return w
}

func (suite *GinServerTestSuite) get(target string) *httptest.ResponseRecorder {
	return suite.do(http.MethodGet, target, nil)
}

func (suite *GinServerTestSuite) TestHello() {
	w := suite.get("/")
	suite.Equal(http.StatusOK, w.Code)
	suite.Equal("Hello, world!", w.Body.String())
	suite.True(strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain"))
}

func (suite *GinServerTestSuite) TestArithmetic() {
	tests := []struct {
		target string
		body   string
	}{
		{"/add?a=5&b=3", `{"operation":"addition","a":5,"b":3,"result":8}`},
		{"/subtract?a=10&b=4", `{"operation":"subtraction","a":10,"b":4,"result":6}`},
		{"/add?a=-5.5&b=2.25", `{"operation":"addition","a":-5.5,"b":2.25,"result":-3.25}`},
		{"/subtract?a=0&b=0", `{"operation":"subtraction","a":0,"b":0,"result":0}`},
		{"/add?b=3&a=5&c=9", `{"operation":"addition","a":5,"b":3,"result":8}`},
		{"/add?a=1e3&b=1", `{"operation":"addition","a":1000,"b":1,"result":1001}`},
		{"/add?a=NaN&b=1", `{"operation":"addition","a":null,"b":1,"result":null}`},
		{"/subtract?a=10&b=3", `{"operation":"subtraction","a":10,"b":3,"result":7}`},
		{"/subtract?a=5&b=10", `{"operation":"subtraction","a":5,"b":10,"result":-5}`},
		{"/add?a=-10&b=-5", `{"operation":"addition","a":-10,"b":-5,"result":-15}`},
		{"/add?a=%2B1&b=2", `{"operation":"addition","a":1,"b":2,"result":3}`},
	}

	for _, tt := range tests {
		suite.Run(tt.target, func() {
			w := suite.get(tt.target)
			suite.Equal(http.StatusOK, w.Code)
			suite.JSONEq(tt.body, w.Body.String())
			suite.True(strings.HasPrefix(w.Header().Get("Content-Type"), "application/json"))
		})
	}
}

func (suite *GinServerTestSuite) TestAddDecimals() {
	w := suite.get("/add?a=2.5&b=3.7")
	suite.Equal(http.StatusOK, w.Code)

	var res struct {
		Operation string  `json:"operation"`
		A         float64 `json:"a"`
		B         float64 `json:"b"`
		Result    float64 `json:"result"`
	}
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &res))
	suite.Equal("addition", res.Operation)
	suite.Equal(2.5, res.A)
	suite.Equal(3.7, res.B)
	suite.InDelta(6.2, res.Result, 1e-9)
}

func (suite *GinServerTestSuite) TestClientErrors() {
	tests := []struct {
		target string
		body   string
	}{
		{"/add?a=5", "Parameters 'a' and 'b' are required"},
		{"/subtract?b=1", "Parameters 'a' and 'b' are required"},
		{"/add", "Parameters 'a' and 'b' are required"},
		{"/add?a=abc&b=3", "Parameters must be valid numbers"},
		{"/subtract?a=1&b=", "Parameters must be valid numbers"},
		{"/add?a=0x10&b=1", "Parameters must be valid numbers"},
		{"/add?a=abc", "Parameters 'a' and 'b' are required"},
		{"/subtract?a=10&b=xyz", "Parameters must be valid numbers"},
		{"/add?a=1&a=2&b=3", "Parameters must be valid numbers"},
		{"/add?a=1&b=%zz", "Parameters must be valid numbers"},
		{"/subtract?a=%zz&b=1", "Parameters must be valid numbers"},
		{"/add?a=%zz", "Parameters 'a' and 'b' are required"},
	}

	for _, tt := range tests {
		suite.Run(tt.target, func() {
			w := suite.get(tt.target)
			suite.Equal(http.StatusBadRequest, w.Code)
			suite.Equal(tt.body, w.Body.String())
		})
	}
}

func (suite *GinServerTestSuite) TestNotFound() {
	for _, target := range []string{"/multiply?a=1&b=2", "/add/", "/nope"} {
		w := suite.get(target)
		suite.Equal(http.StatusNotFound, w.Code, target)
	}
}

func (suite *GinServerTestSuite) TestMethodNotAllowed() {
	for _, target := range []string{"/", "/add?a=1&b=2", "/subtract"} {
		w := suite.do(http.MethodPost, target, nil)
		suite.Equal(http.StatusMethodNotAllowed, w.Code, target)
	}
}

func (suite *GinServerTestSuite) TestRequestID() {
	w := suite.get("/")
	generated := w.Header().Get(ginhttp.HeaderRequestID)
	suite.Len(generated, 36)

	w = suite.do(http.MethodGet, "/", http.Header{ginhttp.HeaderRequestID: {"abc-123"}})
	suite.Equal("abc-123", w.Header().Get(ginhttp.HeaderRequestID))

	w = suite.do(http.MethodGet, "/", http.Header{ginhttp.HeaderRequestID: {strings.Repeat("x", 200)}})
	suite.Len(w.Header().Get(ginhttp.HeaderRequestID), 36)
}

func (suite *GinServerTestSuite) TestProtobuf() {
	w := suite.do(http.MethodGet, "/add?a=5&b=3", http.Header{"Accept": {"application/x-protobuf"}})
	suite.Equal(http.StatusOK, w.Code)
	suite.Equal("application/x-protobuf", w.Header().Get("Content-Type"))

	var msg structpb.Struct
	suite.Require().NoError(proto.Unmarshal(w.Body.Bytes(), &msg))
	suite.Equal("addition", msg.Fields["operation"].GetStringValue())
	suite.Equal(8.0, msg.Fields["result"].GetNumberValue())

	// Errors and text stay plain regardless of Accept.
	w = suite.do(http.MethodGet, "/add?a=5", http.Header{"Accept": {"application/x-protobuf"}})
	suite.Equal(http.StatusBadRequest, w.Code)
	suite.Equal("Parameters 'a' and 'b' are required", w.Body.String())
}

func (suite *GinServerTestSuite) TestTimeout() {
	release := make(chan struct{})
	defer close(release)

	suite.server.Register(http.MethodGet, "/slow", &httpcalc.Handler{
		Timeout: 20 * time.Millisecond,
		Method: func(c httpcalc.Context) {
			<-release
			c.ReplyOK(httpcalc.Text("late"))
		},
	})

	w := suite.get("/slow")
	suite.Equal(http.StatusRequestTimeout, w.Code)
	suite.Equal(httpcalc.ErrTimeout.Error(), w.Body.String())
}

func (suite *GinServerTestSuite) TestRegisterTwice() {
	suite.NotPanics(func() {
		suite.server.Register(http.MethodGet, "/", &httpcalc.Handler{
			Method: func(c httpcalc.Context) { c.ReplyOK(httpcalc.Text("hi")) },
		})
	})
	suite.Equal("hi", suite.get("/").Body.String())
}

func (suite *GinServerTestSuite) TestConcurrentRequests() {
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := suite.get("/add?a=5&b=3")
			var res map[string]interface{}
			suite.NoError(json.Unmarshal(w.Body.Bytes(), &res))
			suite.Equal(8.0, res["result"])
		}()
	}
	wg.Wait()

	// Earlier requests leave no state behind.
	suite.Equal(`{"operation":"addition","a":1,"b":1,"result":2}`, suite.get("/add?a=1&b=1").Body.String())
}

func (suite *GinServerTestSuite) TestTracePropagation() {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tel := telemetry.NewTestTelemetry(suite.T())
	defer tel.Shutdown(context.Background())
	suite.server.SetTelemetry(tel)

	w := suite.do(http.MethodGet, "/", http.Header{
		"Traceparent": {"00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"},
	})
	suite.Equal(http.StatusOK, w.Code)

	spans := tel.Spans()
	suite.Require().Len(spans, 1)
	suite.Equal("GET /", spans[0].Name())
	suite.Equal("4bf92f3577b34da6a3ce929d0e0e4736", spans[0].SpanContext().TraceID().String())
	suite.Equal("00f067aa0ba902b7", spans[0].Parent().SpanID().String())
}

func TestGinServer(t *testing.T) {
	suite.Run(t, new(GinServerTestSuite))
}

type CompressionTestSuite struct {
	suite.Suite
	server *ginhttp.Server
}

func (suite *CompressionTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	suite.server = ginhttp.New(ginhttp.WithCompression(16))
	calc.Register(suite.server, 0)
}

func (suite *CompressionTestSuite) TearDownTest() {
	suite.NoError(suite.server.Close())
}

func (suite *CompressionTestSuite) get(target, acceptEncoding string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if acceptEncoding != "" {
		req.Header.Set("Accept-Encoding", acceptEncoding)
	}
	w := httptest.NewRecorder()
	suite.server.Handler().ServeHTTP(w, req)
	return w
}

func (suite *CompressionTestSuite) TestGzip() {
	w := suite.get("/add?a=5&b=3", "gzip")
	suite.Equal(http.StatusOK, w.Code)
	suite.Equal("gzip", w.Header().Get("Content-Encoding"))
	suite.Equal("Accept-Encoding", w.Header().Get("Vary"))
	suite.True(strings.HasPrefix(w.Header().Get("Content-Type"), "application/json"))

	reader, err := gzip.NewReader(w.Body)
	suite.Require().NoError(err)
	body, err := io.ReadAll(reader)
	suite.Require().NoError(err)
	suite.Equal(`{"operation":"addition","a":5,"b":3,"result":8}`, string(body))
}

func (suite *CompressionTestSuite) TestBrotliPreferred() {
	w := suite.get("/subtract?a=10&b=4", "gzip, deflate, br")
	suite.Equal("br", w.Header().Get("Content-Encoding"))

	body, err := io.ReadAll(brotli.NewReader(bytes.NewReader(w.Body.Bytes())))
	suite.Require().NoError(err)
	suite.Equal(`{"operation":"subtraction","a":10,"b":4,"result":6}`, string(body))
}

func (suite *CompressionTestSuite) TestBelowMinLength() {
	w := suite.get("/", "gzip")
	suite.Equal(http.StatusOK, w.Code)
	suite.Empty(w.Header().Get("Content-Encoding"))
	suite.Equal("Hello, world!", w.Body.String())
}

func (suite *CompressionTestSuite) TestNotAccepted() {
	w := suite.get("/add?a=5&b=3", "")
	suite.Empty(w.Header().Get("Content-Encoding"))
	suite.Equal(`{"operation":"addition","a":5,"b":3,"result":8}`, w.Body.String())

	w = suite.get("/add?a=5&b=3", "gzip;q=0")
	suite.Empty(w.Header().Get("Content-Encoding"))
}

func (suite *CompressionTestSuite) TestErrorsAndNotFound() {
	w := suite.get("/add?a=x&b=1", "gzip")
	suite.Equal(http.StatusBadRequest, w.Code)
	suite.Equal("gzip", w.Header().Get("Content-Encoding"))

	reader, err := gzip.NewReader(w.Body)
	suite.Require().NoError(err)
	body, err := io.ReadAll(reader)
	suite.Require().NoError(err)
	suite.Equal("Parameters must be valid numbers", string(body))

	w = suite.get("/nope", "gzip")
	suite.Equal(http.StatusNotFound, w.Code)
	suite.Equal("404 page not found", w.Body.String())
}

func TestCompression(t *testing.T) {
	suite.Run(t, new(CompressionTestSuite))
}
