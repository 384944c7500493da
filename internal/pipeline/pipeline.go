// Package pipeline runs HTTP requests through an ordered list of stages with a
// single terminal error handler.
package pipeline

import (
	"fmt"
	"net/http"
	"time"
)

// Result tags the outcome of a stage that did not fail.
type Result int

const (
	// Continue passes the exchange to the next stage.
	Continue Result = iota
	// Handled means the stage wrote the response; no further stages run.
	Handled
)

// Exchange is one request/response pair moving through the pipeline.
type Exchange struct {
	ID       string
	Started  time.Time
	Request  *http.Request
	Response *Response
	// Err is the failure that reached the error handler, if any.
	Err error
}

// Stage is one step of the pipeline. A non-nil error routes the exchange to
// the error handler.
type Stage interface {
	Handle(x *Exchange) (Result, error)
}

// StageFunc adapts a function to Stage.
type StageFunc func(x *Exchange) (Result, error)

func (f StageFunc) Handle(x *Exchange) (Result, error) { return f(x) }

// ErrorHandler converts a failure into a response.
type ErrorHandler func(x *Exchange, err error)

// Hook observes an exchange without touching the response body.
type Hook func(x *Exchange)

// Pipeline is an http.Handler built from stages. It must be fully assembled
// before it starts serving.
type Pipeline struct {
	stages  []Stage
	onError ErrorHandler
	enter   []Hook
	finish  []Hook
}

// New creates an empty Pipeline.
func New() *Pipeline {
	return &Pipeline{onError: defaultErrorHandler}
}

// Use appends a stage.
func (p *Pipeline) Use(s Stage) {
	p.stages = append(p.stages, s)
}

// OnError sets the terminal error handler. It runs after every failure no
// matter when it was registered.
func (p *Pipeline) OnError(h ErrorHandler) {
	p.onError = h
}

// OnEnter registers a hook run before the first stage.
func (p *Pipeline) OnEnter(h Hook) {
	p.enter = append(p.enter, h)
}

// OnFinish registers a hook run once the response is complete.
func (p *Pipeline) OnFinish(h Hook) {
	p.finish = append(p.finish, h)
}

func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	x := &Exchange{
		Started:  time.Now(),
		Request:  r,
		Response: newResponse(w),
	}
	for _, h := range p.enter {
		h(x)
	}
	defer func() {
		for _, h := range p.finish {
			h(x)
		}
	}()

	err := p.run(x)
	if err == nil {
		return
	}
	x.Err = err
	p.onError(x, err)
}

func (p *Pipeline) run(x *Exchange) (err error) {
	defer func() {
		if v := recover(); v != nil {
			if v == http.ErrAbortHandler {
				panic(v)
			}
			err = Errorf(http.StatusInternalServerError, "panic: %v", v)
		}
	}()

	for _, s := range p.stages {
		res, err := s.Handle(x)
		if err != nil {
			return err
		}
		if res == Handled {
			return nil
		}
	}
	return NewError(http.StatusNotFound, fmt.Errorf("Cannot %s %s", x.Request.Method, x.Request.URL.Path))
}

func defaultErrorHandler(x *Exchange, err error) {
	if x.Response.Started() {
		return
	}
	http.Error(x.Response, http.StatusText(StatusOf(err)), StatusOf(err))
}
