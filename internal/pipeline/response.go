package pipeline

import (
	"bufio"
	"net"
	"net/http"
)

// Response wraps an http.ResponseWriter and records what was written.
type Response struct {
	http.ResponseWriter

	status  int
	written int64
}

func newResponse(w http.ResponseWriter) *Response {
	return &Response{ResponseWriter: w}
}

func (r *Response) WriteHeader(code int) {
	if r.status == 0 || r.status < 200 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *Response) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(p)
	r.written += int64(n)
	return n, err
}

// Status returns the status code sent, or 0 if nothing has been sent yet.
func (r *Response) Status() int {
	return r.status
}

// Started reports whether headers have been sent.
func (r *Response) Started() bool {
	return r.status != 0
}

// Written returns the number of body bytes written.
func (r *Response) Written() int64 {
	return r.written
}

// Hijack takes over the connection, as a websocket upgrade does. A successful
// hijack is recorded as 101 since the handler writes the status line itself.
func (r *Response) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	conn, brw, err := http.NewResponseController(r.ResponseWriter).Hijack()
	if err == nil && r.status == 0 {
		r.status = http.StatusSwitchingProtocols
	}
	return conn, brw, err
}

// Unwrap lets http.ResponseController reach Flush and Hijack on the
// underlying writer.
func (r *Response) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
