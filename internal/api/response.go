package api

import (
	"encoding/json"
	"net/http"
)

// Error codes returned in the error envelope.
const (
	CodeNotFound   = "NOT_FOUND"
	CodeBadRequest = "BAD_REQUEST"
	CodeInternal   = "INTERNAL_ERROR"
	CodeJobFailed  = "JOB_FAILED"
)

// envelope is the body of every API response: exactly one member is set.
type envelope struct {
	Data  any       `json:"data,omitempty"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type listBody struct {
	Items any `json:"items"`
	Count int `json:"count"`
}

func respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Data: data})
}

func fail(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Error: &apiError{Code: code, Message: message}})
}

func internalError(w http.ResponseWriter) {
	fail(w, http.StatusInternalServerError, CodeInternal, "internal server error")
}
