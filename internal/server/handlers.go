package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kyleking/segmentsql/internal/errors"
	"github.com/kyleking/segmentsql/internal/logging"
	"github.com/kyleking/segmentsql/internal/segment"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind        string   `json:"kind"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req segment.GenerateRequest
	if !decode(w, r, &req) {
		return
	}

	result, err := s.pipeline.Generate(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req segment.ValidateRequest
	if !decode(w, r, &req) {
		return
	}

	result, err := s.pipeline.Validate(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req segment.PreviewRequest
	if !decode(w, r, &req) {
		return
	}

	result, err := s.pipeline.Preview(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	ids, err := s.pipeline.Schemas(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	if ids == nil {
		ids = []string{}
	}

	writeJSON(w, http.StatusOK, map[string][]string{"schemas": ids})
}

func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	def, err := s.pipeline.Schema(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, def)
}

// decode reads a JSON body, answering 400 itself on failure
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(body).Decode(v); err != nil {
		msg := "invalid JSON body: " + err.Error()
		if err == io.EOF {
			msg = "request body is required"
		}

		writeError(w, r, errors.New(errors.ErrTypeValidation, msg))

		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto its HTTP status. Unstructured errors are not
// echoed to the caller.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	kind := errors.GetType(err)

	detail := errorDetail{Kind: string(kind), Message: errors.Message(err)}

	var structured *errors.Error
	if errors.As(err, &structured) {
		detail.Suggestions = structured.Suggestions
	} else {
		detail.Message = "internal server error"
	}

	logger := logging.FromContext(r.Context()).WithError(err).WithField("kind", kind)
	if status >= http.StatusInternalServerError {
		logger.Error("request error")
	} else {
		logger.Debug("request rejected")
	}

	writeJSON(w, status, errorBody{Error: detail})
}

func writeErrorKind(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Kind: kind, Message: message}})
}
