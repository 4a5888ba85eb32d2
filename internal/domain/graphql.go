package domain

import (
	"encoding/json"
	"strings"
)

// GraphQLRequest is the JSON body posted to the content-services endpoint.
type GraphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type GraphQLErrorEntry struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// GraphQLResponse is the transport-level envelope. Data stays raw; each
// caller decodes the selection it asked for.
type GraphQLResponse struct {
	Data   json.RawMessage     `json:"data"`
	Errors []GraphQLErrorEntry `json:"errors,omitempty"`
}

// ErrorMessages flattens the error list for logging and error text.
func (r *GraphQLResponse) ErrorMessages() string {
	if r == nil || len(r.Errors) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}
