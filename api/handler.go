package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// MaxBodySize bounds request bodies accepted by mounted handlers.
const MaxBodySize = 1 << 20 // 1MB

// Request is what a Handler receives.
type Request struct {
	Params map[string]string
	Body   []byte
}

// Decode unmarshals the JSON request body into v. Decode errors are
// reported to the caller as 400 Bad Request.
func (r *Request) Decode(v any) error {
	if len(r.Body) == 0 {
		return &Error{Status: http.StatusBadRequest, Message: "missing request body"}
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &Error{Status: http.StatusBadRequest, Message: "invalid request body: " + err.Error()}
	}
	return nil
}

// Handler implements one route. The result is encoded as JSON.
type Handler func(ctx context.Context, req *Request) (any, error)

// Implementation maps route names to handlers.
type Implementation map[string]Handler

// Error is a handler failure with an HTTP status.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, http.StatusText(e.Status), e.Message)
}

// Mount registers impl's routes on mux below prefix, e.g. "/api".
func Mount(mux *http.ServeMux, prefix string, def Definition, impl Implementation) (err error) {
	if err := def.Check(impl); err != nil {
		return err
	}
	prefix = strings.TrimSuffix(prefix, "/")

	// ServeMux panics on patterns that conflict with ones already
	// registered.
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w %s: %v", ErrInvalidDefinition, def.Name, p)
		}
	}()

	for _, r := range def.Routes {
		pattern := r.Method + " " + prefix + r.Path
		if strings.HasSuffix(pattern, "/") {
			pattern += "{$}"
		}
		mux.Handle(pattern, serveRoute(r, impl[r.Name]))
	}
	return nil
}

func serveRoute(route Route, h Handler) http.HandlerFunc {
	params := route.Params()

	return func(w http.ResponseWriter, r *http.Request) {
		req := &Request{Params: make(map[string]string, len(params))}
		for _, p := range params {
			req.Params[p] = r.PathValue(p)
		}

		if route.HasBody {
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))
			if err != nil {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			req.Body = body
		}

		v, err := h(r.Context(), req)
		if err != nil {
			var apiErr *Error
			if errors.As(err, &apiErr) {
				writeError(w, apiErr.Status, apiErr.Message)
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		data, err := json.Marshal(v)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "encode response: "+err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
