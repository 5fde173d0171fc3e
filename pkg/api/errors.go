package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"deal-watch/pkg/sources"
)

// follows RFC 7807: Problem Details for HTTP APIs
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

func (pd *ProblemDetails) Error() string {
	return fmt.Sprintf("%d %s: %s", pd.Status, pd.Title, pd.Detail)
}

func WriteError(w http.ResponseWriter, status int, title, detail, instance string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	pd := &ProblemDetails{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	}

	json.NewEncoder(w).Encode(pd)
}

func WriteInternalServerError(w http.ResponseWriter, err error, instance string) {
	WriteError(w, http.StatusInternalServerError, "Internal Server Error", err.Error(), instance)
}

func WriteBadRequest(w http.ResponseWriter, detail, instance string) {
	WriteError(w, http.StatusBadRequest, "Bad Request", detail, instance)
}

// FetchStatus maps a source lookup error onto an HTTP status and title.
func FetchStatus(err error) (int, string) {
	switch {
	case errors.Is(err, sources.ErrUnknownSource):
		return http.StatusBadRequest, "Bad Request"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Gateway Timeout"
	}

	switch sources.Classify(err) {
	case sources.OutcomeNotFound:
		return http.StatusNotFound, "Not Found"
	case sources.OutcomeFatal:
		return http.StatusBadGateway, "Bad Gateway"
	case sources.OutcomeTransient:
		return http.StatusServiceUnavailable, "Service Unavailable"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}

func WriteFetchError(w http.ResponseWriter, err error, instance string) {
	status, title := FetchStatus(err)
	WriteError(w, status, title, err.Error(), instance)
}
