package handshake

import (
	"net/url"
	"time"
)

// RequestInfo is the request metadata delivered to observers once a request
// is fully constructed.
type RequestInfo struct {
	ID      string    `json:"id"`
	URL     *url.URL  `json:"-"`
	Headers []Field   `json:"headers"`
	Time    time.Time `json:"time"`
}

// ResponseInfo is the response metadata delivered to observers once a
// response head has been parsed.
type ResponseInfo struct {
	RequestID  string    `json:"requestId"`
	URL        *url.URL  `json:"-"`
	StatusCode int       `json:"statusCode"`
	StatusText string    `json:"statusText"`
	Headers    []Field   `json:"headers"`
	Time       time.Time `json:"time"`
}
