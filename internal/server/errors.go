package server

import (
	"runtime/debug"

	"github.com/jfoltran/webstart/internal/config"
	"github.com/jfoltran/webstart/internal/pipeline"
)

const genericMessage = "Something went wrong"

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// errorHandler renders failures as JSON. Production responses never carry the
// error text or a stack.
func errorHandler(mode config.Mode) pipeline.ErrorHandler {
	return func(x *pipeline.Exchange, err error) {
		if x.Response.Started() {
			return
		}

		resp := errorResponse{Status: "error", Message: genericMessage}
		if mode != config.Production {
			resp.Message = err.Error()
			resp.Stack = pipeline.StackOf(err)
			if resp.Stack == "" {
				resp.Stack = string(debug.Stack())
			}
		}
		_ = writeJSON(x.Response, pipeline.StatusOf(err), resp)
	}
}
