package httpcalc

const (
	StatusOK               = 200
	StatusClientError      = 400
	StatusNotFound         = 404
	StatusMethodNotAllowed = 405
	StatusRequestTimeout   = 408
	StatusServerError      = 500

	DefaultQoS = 0
)
