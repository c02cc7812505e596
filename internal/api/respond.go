package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// validationErrorBody lists the failed rule for each offending field.
type validationErrorBody struct {
	Error  string              `json:"error"`
	Fields map[string][]string `json:"fields"`
}

func respondValidationError(w http.ResponseWriter, err error) {
	fields := map[string][]string{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			field := strings.ToLower(fe.Field())
			fields[field] = append(fields[field], fe.Tag())
		}
	}
	if len(fields) == 0 {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusBadRequest, validationErrorBody{Error: "validation_failed", Fields: fields})
}

// degradedBody is returned with 503 when the event store cannot be read.
type degradedBody struct {
	Warning string `json:"warning"`
	Details string `json:"details"`
}
