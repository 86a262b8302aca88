package jira

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
)

// APIError is a non-2xx answer from Jira.
type APIError struct {
	Status   int
	Messages []string
}

func (e *APIError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("jira: HTTP %d", e.Status)
	}
	return fmt.Sprintf("jira: HTTP %d: %s", e.Status, strings.Join(e.Messages, "; "))
}

func newAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		ErrorMessages []string          `json:"errorMessages"`
		Errors        map[string]string `json:"errors"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		if text := strings.TrimSpace(string(raw)); text != "" {
			apiErr.Messages = []string{text}
		}
		return apiErr
	}

	apiErr.Messages = append(apiErr.Messages, body.ErrorMessages...)
	fields := make([]string, 0, len(body.Errors))
	for f := range body.Errors {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		apiErr.Messages = append(apiErr.Messages, f+": "+body.Errors[f])
	}
	return apiErr
}
