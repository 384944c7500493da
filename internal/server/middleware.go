package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jfoltran/webstart/internal/pipeline"
)

type jsonBodyKey struct{}

// requestJSON returns the JSON document sent with r, or nil when the request
// carried none.
func requestJSON(r *http.Request) json.RawMessage {
	body, _ := r.Context().Value(jsonBodyKey{}).(json.RawMessage)
	return body
}

// jsonBody reads and validates application/json request bodies up to limit
// bytes. The body remains readable by later stages.
func jsonBody(limit int64) pipeline.StageFunc {
	return func(x *pipeline.Exchange) (pipeline.Result, error) {
		r := x.Request
		if r.Body == nil || r.Body == http.NoBody || !isJSON(r.Header.Get("Content-Type")) {
			return pipeline.Continue, nil
		}
		if r.ContentLength > limit {
			return pipeline.Continue, pipeline.Errorf(http.StatusRequestEntityTooLarge, "request entity too large")
		}

		data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
		r.Body.Close()
		if err != nil {
			return pipeline.Continue, pipeline.NewError(http.StatusBadRequest, fmt.Errorf("read body: %w", err))
		}
		if int64(len(data)) > limit {
			return pipeline.Continue, pipeline.Errorf(http.StatusRequestEntityTooLarge, "request entity too large")
		}

		r.Body = io.NopCloser(bytes.NewReader(data))
		if len(bytes.TrimSpace(data)) == 0 {
			return pipeline.Continue, nil
		}
		if err := checkJSON(data); err != nil {
			return pipeline.Continue, pipeline.NewError(http.StatusBadRequest, err)
		}
		x.Request = r.WithContext(context.WithValue(r.Context(), jsonBodyKey{}, json.RawMessage(data)))
		return pipeline.Continue, nil
	}
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "application/json"
}

// checkJSON accepts only an object or array at the top level.
func checkJSON(data []byte) error {
	if c := bytes.TrimLeft(data, " \t\r\n"); c[0] != '{' && c[0] != '[' {
		return fmt.Errorf("invalid JSON body: top-level value must be an object or array")
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		var syn *json.SyntaxError
		if errors.As(err, &syn) {
			return fmt.Errorf("invalid JSON body at offset %d: %w", syn.Offset, err)
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

const requestIDHeader = "X-Request-ID"

// requestLogger tags each exchange with a request id and writes one line per
// completed exchange.
type requestLogger struct {
	logger zerolog.Logger
}

func (l *requestLogger) enter(x *pipeline.Exchange) {
	id := x.Request.Header.Get(requestIDHeader)
	if id == "" || len(id) > 128 {
		id = uuid.NewString()
	}
	x.ID = id
	x.Response.Header().Set(requestIDHeader, id)
}

func (l *requestLogger) finish(x *pipeline.Exchange) {
	ms := time.Since(x.Started).Milliseconds()
	if ms < 0 {
		ms = 0
	}
	status := x.Response.Status()
	if status == 0 {
		status = http.StatusOK
	}

	ev := l.logger.Info().Str("request_id", x.ID)
	if x.Err != nil {
		ev = ev.AnErr("error", x.Err)
	}
	ev.Msgf("%s %s %d %dms", x.Request.Method, x.Request.URL.Path, status, ms)
}
