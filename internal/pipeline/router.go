package pipeline

import (
	"context"
	"net/http"
)

// HandlerFunc is a route handler that reports failures instead of writing
// error responses itself.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

type errSlotKey struct{}

type route struct {
	fn HandlerFunc
}

func (rt route) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := rt.fn(w, r)
	if slot, ok := r.Context().Value(errSlotKey{}).(*error); ok {
		*slot = err
	}
}

// Router is a route table keyed by net/http method patterns
// (e.g. "GET /api/data"). Requests matching no route continue down the pipeline.
type Router struct {
	mux *http.ServeMux
}

func NewRouter() *Router {
	return &Router{mux: http.NewServeMux()}
}

// Route registers fn for pattern. It panics on conflicting patterns, like
// http.ServeMux.
func (rt *Router) Route(pattern string, fn HandlerFunc) {
	rt.mux.Handle(pattern, route{fn: fn})
}

func (rt *Router) Handle(x *Exchange) (Result, error) {
	h, pattern := rt.mux.Handler(x.Request)
	if pattern == "" {
		return Continue, nil
	}
	if _, ok := h.(route); !ok {
		return Continue, nil
	}

	var err error
	r := x.Request.WithContext(context.WithValue(x.Request.Context(), errSlotKey{}, &err))
	rt.mux.ServeHTTP(x.Response, r)
	return Handled, err
}
