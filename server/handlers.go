package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/hupe1980/vecserve"
	"github.com/hupe1980/vecserve/backend"
)

// CodeRateLimited is returned with 429 when the query limiter rejects a
// request.
const CodeRateLimited vecserve.Code = "RATE_LIMITED"

type errorBody struct {
	Code    vecserve.Code `json:"code"`
	Message string        `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type loadedBody struct {
	Count   int    `json:"count"`
	Dim     int    `json:"dim"`
	Backend string `json:"backend"`
}

type loadResponse struct {
	OK     bool        `json:"ok"`
	Loaded *loadedBody `json:"loaded,omitempty"`
	Error  *errorBody  `json:"error,omitempty"`
}

type queryResponse struct {
	Neighbors []backend.Neighbor `json:"neighbors"`
	LatencyMS float64            `json:"latency_ms"`
	Backend   string             `json:"backend"`
}

// writeJSON encodes v before committing the status, so an unencodable
// value turns into an INTERNAL_ERROR response instead of an empty body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(errorResponse{Error: errorBody{
			Code:    vecserve.CodeInternal,
			Message: "encode response: " + err.Error(),
		}})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func writeJSONError(w http.ResponseWriter, err error) {
	code := vecserve.CodeOf(err)
	writeJSON(w, statusFor(code), errorResponse{Error: errorBody{Code: code, Message: err.Error()}})
}

func statusFor(code vecserve.Code) int {
	switch code {
	case vecserve.CodeInternal:
		return http.StatusInternalServerError
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = io.WriteString(w, "ok")
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Stats())
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeLoad(w, r)
	if err == nil {
		var res vecserve.LoadResult
		res, err = s.svc.Load(r.Context(), req)
		if err == nil {
			writeJSON(w, http.StatusOK, loadResponse{
				OK:     true,
				Loaded: &loadedBody{Count: res.Count, Dim: res.Dim, Backend: res.Backend},
			})
			return
		}
	}

	code := vecserve.CodeOf(err)
	writeJSON(w, statusFor(code), loadResponse{
		Error: &errorBody{Code: code, Message: err.Error()},
	})
}

func (s *Server) decodeLoad(w http.ResponseWriter, r *http.Request) (vecserve.LoadRequest, error) {
	var req vecserve.LoadRequest

	f, err := decodeFields(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		return req, err
	}
	if err := f.required("path", &req.Path); err != nil {
		return req, err
	}
	if err := f.optional("ids_path", &req.IDsPath); err != nil {
		return req, err
	}
	if err := f.optional("metric", &req.Metric); err != nil {
		return req, err
	}
	if err := f.optional("backend", &req.Backend); err != nil {
		return req, err
	}
	return req, nil
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	// An empty service answers NO_INDEX before looking at the body.
	if !s.svc.Ready() {
		writeJSONError(w, vecserve.ErrNoIndexLoaded)
		return
	}

	f, err := decodeFields(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		writeJSONError(w, err)
		return
	}

	var (
		k      int
		vector []float32
	)
	if err := f.required("k", &k); err != nil {
		writeJSONError(w, err)
		return
	}
	if err := f.required("vector", &vector); err != nil {
		writeJSONError(w, err)
		return
	}

	res, err := s.svc.Query(r.Context(), vector, k)
	if err != nil {
		writeJSONError(w, err)
		return
	}

	neighbors := res.Neighbors
	if neighbors == nil {
		neighbors = []backend.Neighbor{}
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Neighbors: neighbors,
		LatencyMS: float64(res.Latency.Nanoseconds()) / 1e6,
		Backend:   res.Backend,
	})
}

const indexHTML = `<html><body><h2>vecserve</h2>` +
	`<p>Endpoints: <code>/healthz</code>, <code>/stats</code>, <code>/load</code>, <code>/query</code>, <code>/metrics</code></p>` +
	`</body></html>`

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, indexHTML)
}

// fields holds the top-level members of a JSON object body.
type fields map[string]json.RawMessage

var jsonNull = []byte("null")

// decodeFields reads a JSON object. Malformed JSON is INVALID_JSON; valid
// JSON that is not an object is INVALID_FIELD.
func decodeFields(r io.Reader) (fields, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, vecserve.WrapError(vecserve.CodeInvalidValue, err, "request body exceeds %d bytes", tooLarge.Limit)
		}
		return nil, vecserve.WrapError(vecserve.CodeInvalidJSON, err, "failed to read body: %v", err)
	}
	if !json.Valid(body) {
		return nil, vecserve.NewError(vecserve.CodeInvalidJSON, "failed to parse JSON body")
	}

	var f fields
	if err := json.Unmarshal(body, &f); err != nil {
		return nil, vecserve.WrapError(vecserve.CodeInvalidField, err, "request body must be a JSON object")
	}
	return f, nil
}

func (f fields) has(name string) bool {
	raw, ok := f[name]
	return ok && !bytes.Equal(bytes.TrimSpace(raw), jsonNull)
}

func (f fields) required(name string, dst any) error {
	if !f.has(name) {
		return vecserve.NewError(vecserve.CodeMissingField, "missing required field: %s", name)
	}
	return f.decode(name, dst)
}

func (f fields) optional(name string, dst any) error {
	if !f.has(name) {
		return nil
	}
	return f.decode(name, dst)
}

func (f fields) decode(name string, dst any) error {
	if err := json.Unmarshal(f[name], dst); err != nil {
		return vecserve.WrapError(vecserve.CodeInvalidField, err, "invalid %s: %v", name, err)
	}
	return nil
}
