package handshake

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/http/httpguts"
)

// Default response size limits.
const (
	DefaultMaxHeaderBytes  = 256 * 1024
	DefaultMaxHeaderFields = 8192
)

// Limits bounds how much of a response head is buffered.
type Limits struct {
	// MaxHeaderBytes caps the status line plus all header lines.
	MaxHeaderBytes int

	// MaxHeaderFields caps the number of header fields.
	MaxHeaderFields int
}

// DefaultLimits returns the default response limits.
func DefaultLimits() Limits {
	return Limits{
		MaxHeaderBytes:  DefaultMaxHeaderBytes,
		MaxHeaderFields: DefaultMaxHeaderFields,
	}
}

func (l Limits) withDefaults() Limits {
	if l.MaxHeaderBytes <= 0 {
		l.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if l.MaxHeaderFields <= 0 {
		l.MaxHeaderFields = DefaultMaxHeaderFields
	}
	return l
}

// Response is a parsed, immutable response head.
type Response struct {
	Proto      string
	StatusCode int
	StatusText string
	Header     Header
	Received   time.Time
}

var errHeadersTooLarge = errors.New("response headers too large")

// ReadResponse reads a status line and header block from br. Bytes after
// the terminating blank line are left unread in br.
//
// It fails with KindConnectionClosedBeforeResponse if the stream ends before
// the first byte, and with KindMalformedResponse for anything that is not a
// well-formed HTTP/1.x response head or that exceeds limits. Other read
// errors are returned unchanged.
func ReadResponse(br *bufio.Reader, limits Limits) (*Response, error) {
	limits = limits.withDefaults()
	budget := limits.MaxHeaderBytes

	line, err := readLine(br, &budget)
	if err != nil {
		switch {
		case errors.Is(err, io.EOF) && line == nil:
			return nil, &Error{
				Kind:   KindConnectionClosedBeforeResponse,
				Detail: "Connection closed before receiving a handshake response",
				Err:    err,
			}
		case errors.Is(err, errHeadersTooLarge):
			return nil, malformed("Response headers too large")
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return nil, malformed("Invalid status line")
		}
		return nil, err
	}

	resp, ok := parseStatusLine(line)
	if !ok {
		return nil, malformed("Invalid status line")
	}

	for {
		line, err = readLine(br, &budget)
		if err != nil {
			switch {
			case errors.Is(err, errHeadersTooLarge):
				return nil, malformed("Response headers too large")
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
				return nil, &Error{Kind: KindMalformedResponse, Detail: "Incomplete response headers", Err: err}
			}
			return nil, err
		}
		if len(line) == 0 {
			break
		}

		// obs-fold: continuation of the previous field value.
		if line[0] == ' ' || line[0] == '\t' {
			n := len(resp.Header.fields)
			if n == 0 {
				return nil, malformed("Invalid header continuation")
			}
			last := &resp.Header.fields[n-1]
			last.Value = strings.TrimSpace(last.Value + " " + string(bytes.TrimSpace(line)))
			continue
		}

		name, value, ok := parseHeaderLine(line)
		if !ok {
			return nil, malformed("Invalid response header: " + strconv.Quote(string(line)))
		}
		if resp.Header.Len() >= limits.MaxHeaderFields {
			return nil, malformed("Response headers too large")
		}
		resp.Header.Add(name, value)
	}

	resp.Received = time.Now()
	return resp, nil
}

// readLine returns one line without its terminator, charging its length
// against budget. A nil line with io.EOF means nothing was read.
func readLine(br *bufio.Reader, budget *int) ([]byte, error) {
	var line []byte
	for {
		chunk, err := br.ReadSlice('\n')
		if len(chunk) > *budget {
			return nil, errHeadersTooLarge
		}
		*budget -= len(chunk)
		line = append(line, chunk...)
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if len(line) > 0 && errors.Is(err, io.EOF) {
			return line, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line, nil
}

// parseStatusLine parses "HTTP/1.x SP 3DIGIT [SP reason]".
func parseStatusLine(line []byte) (*Response, bool) {
	s := string(line)
	proto, rest, ok := strings.Cut(s, " ")
	if !ok || !validProto(proto) {
		return nil, false
	}
	code, text, _ := strings.Cut(rest, " ")
	if len(code) != 3 {
		return nil, false
	}
	n := 0
	for i := 0; i < 3; i++ {
		c := code[i]
		if c < '0' || c > '9' {
			return nil, false
		}
		n = n*10 + int(c-'0')
	}
	if n < 100 {
		return nil, false
	}
	return &Response{Proto: proto, StatusCode: n, StatusText: text}, true
}

func validProto(p string) bool {
	if !strings.HasPrefix(p, "HTTP/1.") || len(p) != len("HTTP/1.x") {
		return false
	}
	minor := p[len(p)-1]
	return minor >= '0' && minor <= '9'
}

func parseHeaderLine(line []byte) (name, value string, ok bool) {
	i := bytes.IndexByte(line, ':')
	if i <= 0 {
		return "", "", false
	}
	name = string(line[:i])
	if !httpguts.ValidHeaderFieldName(name) {
		return "", "", false
	}
	value = strings.Trim(string(line[i+1:]), " \t")
	if !httpguts.ValidHeaderFieldValue(value) {
		return "", "", false
	}
	return name, value, true
}

// Info returns the response metadata reported to observers.
func (r *Response) Info(req *Request) *ResponseInfo {
	info := &ResponseInfo{
		StatusCode: r.StatusCode,
		StatusText: r.StatusText,
		Headers:    r.Header.Fields(),
		Time:       r.Received,
	}
	if req != nil {
		info.RequestID = req.ID()
		info.URL = req.URL()
	}
	return info
}

