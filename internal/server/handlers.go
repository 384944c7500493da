package server

import (
	"encoding/json"
	"net/http"

	"github.com/jfoltran/webstart/internal/pipeline"
)

type dataResponse struct {
	Message string `json:"message"`
}

func routes() *pipeline.Router {
	rt := pipeline.NewRouter()
	rt.Route("GET /api/data", data)
	return rt
}

func data(w http.ResponseWriter, r *http.Request) error {
	return writeJSON(w, http.StatusOK, dataResponse{Message: "Hello from API!"})
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(body)
	return err
}
