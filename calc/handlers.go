package calc

import (
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/xizhibei/go-httpcalc"
	"go.uber.org/zap"
)

// Greeting is the body of GET /.
const Greeting = "Hello, world!"

// Register binds GET /, GET /add and GET /subtract on r.
// A zero timeout leaves the server default in place.
func Register(r httpcalc.Registrar, timeout time.Duration) {
	r.Register(http.MethodGet, "/", &httpcalc.Handler{
		Method:  hello,
		Timeout: timeout,
	})
	r.Register(http.MethodGet, "/add", &httpcalc.Handler{
		Method:  arithmetic(Addition),
		Timeout: timeout,
	})
	r.Register(http.MethodGet, "/subtract", &httpcalc.Handler{
		Method:  arithmetic(Subtraction),
		Timeout: timeout,
	})
}

func hello(c httpcalc.Context) {
	c.ReplyOK(httpcalc.Text(Greeting))
}

func arithmetic(op Operation) func(c httpcalc.Context) {
	log := zap.S().With("module", "httpcalc.calc", "operation", string(op))

	return func(c httpcalc.Context) {
		p, err := ExtractParams(c.Query())
		if err != nil {
			var appErr *AppError
			if errors.As(err, &appErr) {
				log.Debugf("Rejected %s: %s", c.ReplyDesc(), appErr.Detail())
			}
			status, _ := ToResponse(err)
			c.ReplyError(status, err)
			return
		}

		c.ReplyOK(NewResult(op, p))
	}
}
