package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"

	"github.com/Manonp59/prbmg/internal/api/response"
	"github.com/Manonp59/prbmg/pkg/models"
)

// apiError is the client-facing form of a pipeline error.
type apiError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// classify maps err onto a status and code. Configuration failures carry
// the incident and model so operators can trace them.
func classify(err error, incidentNumber, model string) apiError {
	var ve *models.ValidationError
	switch {
	case errors.As(err, &ve):
		return apiError{http.StatusBadRequest, response.CodeValidation, "Invalid prediction request", ve.Fields}
	case errors.Is(err, models.ErrUnauthorized):
		return apiError{http.StatusUnauthorized, response.CodeUnauthorized, "Unauthorized", nil}
	case errors.Is(err, models.ErrNotFound):
		return apiError{http.StatusNotFound, response.CodeNotFound, "Incident not found",
			map[string]string{"incident_number": incidentNumber}}
	case errors.Is(err, models.ErrConfiguration):
		return apiError{http.StatusServiceUnavailable, response.CodeConfiguration,
			"The clustering model could not be resolved or loaded",
			map[string]string{"incident_number": incidentNumber, "model": model, "reason": err.Error()}}
	case errors.Is(err, context.DeadlineExceeded):
		return apiError{http.StatusGatewayTimeout, "TIMEOUT", "The prediction did not complete in time",
			map[string]string{"incident_number": incidentNumber}}
	default:
		return apiError{http.StatusInternalServerError, response.CodeInternal, "An unexpected error occurred",
			map[string]string{"incident_number": incidentNumber}}
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error, incidentNumber, model string) {
	e := classify(err, incidentNumber, model)
	if e.Status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"path", r.URL.Path,
			"incident_number", incidentNumber,
			"model", model,
			"status", e.Status,
			"error", err,
		)
	}
	response.Error(w, e.Status, e.Code, e.Message, e.Details)
}

// writeDecodeError reports a body that is valid JSON but carries a value of
// the wrong type as a field validation error; anything else is malformed.
func writeDecodeError(w http.ResponseWriter, err error) {
	var te *json.UnmarshalTypeError
	if errors.As(err, &te) && te.Field != "" {
		e := classify(&models.ValidationError{
			Fields: map[string]string{te.Field: "must be " + jsonKind(te.Type)},
		}, "", "")
		response.Error(w, e.Status, e.Code, e.Message, e.Details)
		return
	}
	response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "Invalid JSON body", nil)
}

func jsonKind(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "a string"
	case reflect.Bool:
		return "a boolean"
	case reflect.Slice, reflect.Array:
		return "an array"
	case reflect.Struct, reflect.Map:
		return "an object"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "a number"
	default:
		return "of type " + t.String()
	}
}
