package pipeline

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func write(body string) StageFunc {
	return func(x *Exchange) (Result, error) {
		x.Response.Write([]byte(body))
		return Handled, nil
	}
}

func TestPipelineOrder(t *testing.T) {
	var order []string
	p := New()
	p.OnEnter(func(x *Exchange) { order = append(order, "enter") })
	p.OnFinish(func(x *Exchange) { order = append(order, "finish") })
	p.Use(StageFunc(func(x *Exchange) (Result, error) {
		order = append(order, "a")
		return Continue, nil
	}))
	p.Use(StageFunc(func(x *Exchange) (Result, error) {
		order = append(order, "b")
		x.Response.Write([]byte("ok"))
		return Handled, nil
	}))
	p.Use(StageFunc(func(x *Exchange) (Result, error) {
		order = append(order, "c")
		return Continue, nil
	}))

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if got := strings.Join(order, ","); got != "enter,a,b,finish" {
		t.Errorf("order = %s, want enter,a,b,finish", got)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q, want ok", rec.Body.String())
	}
}

func TestPipelineErrorHandlerIsTerminal(t *testing.T) {
	p := New()
	var handled error
	var finished *Exchange

	p.Use(StageFunc(func(x *Exchange) (Result, error) {
		return Continue, Errorf(http.StatusTeapot, "short and stout")
	}))
	p.Use(write("unreachable"))
	p.OnFinish(func(x *Exchange) { finished = x })
	// Registered last, still handles failures of earlier stages.
	p.OnError(func(x *Exchange, err error) {
		handled = err
		x.Response.WriteHeader(StatusOf(err))
	})

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest("POST", "/x", nil))

	if handled == nil || handled.Error() != "short and stout" {
		t.Fatalf("error handler got %v", handled)
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("later stage should not run, body = %q", rec.Body.String())
	}
	if finished == nil || finished.Err != handled {
		t.Error("finish hook should see the failure")
	}
	if finished.Response.Status() != http.StatusTeapot {
		t.Errorf("recorded status = %d, want 418", finished.Response.Status())
	}
}

func TestPipelineNotFound(t *testing.T) {
	p := New()
	p.Use(StageFunc(func(x *Exchange) (Result, error) { return Continue, nil }))

	var got error
	p.OnError(func(x *Exchange, err error) { got = err })

	p.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("DELETE", "/nothing", nil))

	if StatusOf(got) != http.StatusNotFound {
		t.Errorf("status = %d, want 404", StatusOf(got))
	}
	if got.Error() != "Cannot DELETE /nothing" {
		t.Errorf("message = %q", got.Error())
	}
}

func TestPipelineRecoversPanic(t *testing.T) {
	p := New()
	p.Use(StageFunc(func(x *Exchange) (Result, error) { panic("boom") }))

	var got error
	p.OnError(func(x *Exchange, err error) { got = err })

	p.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if got == nil || !strings.Contains(got.Error(), "boom") {
		t.Fatalf("error = %v, want panic boom", got)
	}
	if StatusOf(got) != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", StatusOf(got))
	}
	if StackOf(got) == "" {
		t.Error("expected captured stack")
	}
}

func TestPipelineDefaultErrorHandler(t *testing.T) {
	p := New()
	p.Use(StageFunc(func(x *Exchange) (Result, error) { return Continue, errors.New("plain") }))

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"plain", errors.New("x"), 500},
		{"carried", NewError(400, errors.New("bad")), 400},
		{"wrapped", fmt.Errorf("ctx: %w", NewError(413, errors.New("big"))), 413},
		{"not an error status", NewError(302, errors.New("redirect")), 500},
		{"zero", &Error{}, 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusOf(tt.err); got != tt.want {
				t.Errorf("StatusOf() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	e := NewError(http.StatusBadGateway, nil)
	if e.Error() != "Bad Gateway" {
		t.Errorf("Error() = %q, want Bad Gateway", e.Error())
	}
	cause := errors.New("cause")
	if !errors.Is(NewError(500, cause), cause) {
		t.Error("Error should unwrap to its cause")
	}
	if StackOf(errors.New("no stack")) != "" {
		t.Error("plain errors carry no stack")
	}
}

func TestResponseRecords(t *testing.T) {
	rec := httptest.NewRecorder()
	r := newResponse(rec)
	if r.Started() {
		t.Error("fresh response should not be started")
	}
	r.Write([]byte("hello"))
	if r.Status() != http.StatusOK {
		t.Errorf("Status() = %d, want 200", r.Status())
	}
	if r.Written() != 5 {
		t.Errorf("Written() = %d, want 5", r.Written())
	}
	if r.Unwrap() != rec {
		t.Error("Unwrap() should return the underlying writer")
	}
}

type hijackRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

func TestResponseHijack(t *testing.T) {
	upgrade := StageFunc(func(x *Exchange) (Result, error) {
		if _, _, err := http.NewResponseController(x.Response).Hijack(); err != nil {
			return Continue, err
		}
		return Handled, nil
	})

	t.Run("supported", func(t *testing.T) {
		p := New()
		p.Use(upgrade)
		var status int
		p.OnFinish(func(x *Exchange) { status = x.Response.Status() })

		w := &hijackRecorder{ResponseRecorder: httptest.NewRecorder()}
		p.ServeHTTP(w, httptest.NewRequest("GET", "/hmr", nil))
		if !w.hijacked {
			t.Fatal("underlying writer was not hijacked")
		}
		if status != http.StatusSwitchingProtocols {
			t.Errorf("status = %d, want 101", status)
		}
	})

	t.Run("unsupported", func(t *testing.T) {
		r := newResponse(httptest.NewRecorder())
		if _, _, err := r.Hijack(); !errors.Is(err, http.ErrNotSupported) {
			t.Errorf("Hijack() error = %v, want ErrNotSupported", err)
		}
		if r.Status() != 0 {
			t.Errorf("status = %d, want 0", r.Status())
		}
	})
}
