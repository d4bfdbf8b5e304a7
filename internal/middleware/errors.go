package middleware

import (
	"encoding/json"
	"net/http"
)

// errorBody is the JSON error envelope shared with the handler package.
type errorBody struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSONError writes {"status","code","message"} with the given status.
func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{
		Status:  status,
		Code:    code,
		Message: message,
	})
}
