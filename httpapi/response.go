package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/goliatone/go-social-sync/core"
)

type errorBody struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	TextCode string            `json:"text_code"`
	Message  string            `json:"message"`
	Category string            `json:"category"`
	Failure  core.FailureClass `json:"failure,omitempty"`
	Fields   []fieldError      `json:"fields,omitempty"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders the error envelope. Internal failures never expose the
// underlying cause.
func writeError(w http.ResponseWriter, err error) int {
	mapped := core.MapError(err)
	status := mapped.Code
	if status == 0 {
		status = core.HTTPStatus(mapped.Category)
	}
	payload := errorPayload{
		TextCode: mapped.TextCode,
		Message:  mapped.Message,
		Category: string(mapped.Category),
		Failure:  core.ClassifyFailure(err),
	}
	if status >= http.StatusInternalServerError && payload.TextCode == core.ErrorInternal {
		payload.Message = "An unexpected error occurred"
	}
	for _, field := range mapped.AllValidationErrors() {
		payload.Fields = append(payload.Fields, fieldError{Field: field.Field, Message: field.Message})
	}
	writeJSON(w, status, errorBody{Error: payload})
	return status
}
