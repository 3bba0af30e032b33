package gqlrequest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"strings"
)

// Envelope is one GraphQL request: a document, the operation to run and its
// variables as raw JSON.
type Envelope struct {
	ContentType string

	Query         string
	OperationName string
	VariablesRaw  json.RawMessage

	DocumentSizeBytes int
}

// NewEnvelope builds an envelope from its parts. variables may be empty.
func NewEnvelope(query, operationName string, variables []byte) Envelope {
	env := Envelope{
		Query:             query,
		OperationName:     operationName,
		DocumentSizeBytes: len(query),
	}
	if trimmed := bytes.TrimSpace(variables); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		env.VariablesRaw = append(json.RawMessage(nil), trimmed...)
	}
	return env
}

// DecodeEnvelope reads a request body. application/graphql bodies are the
// document itself; anything else is decoded as a JSON request object with
// query, operationName and variables members.
func DecodeEnvelope(body []byte, contentType string) (Envelope, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType == "" {
		mediaType = strings.TrimSpace(contentType)
	}

	if mediaType == "application/graphql" {
		env := NewEnvelope(string(body), "", nil)
		env.ContentType = contentType
		return env, nil
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Envelope{ContentType: contentType}, nil
	}
	var payload struct {
		Query         string          `json:"query"`
		OperationName string          `json:"operationName"`
		Variables     json.RawMessage `json:"variables"`
	}
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return Envelope{ContentType: contentType}, fmt.Errorf("decoding request body: %w", err)
	}
	env := NewEnvelope(payload.Query, payload.OperationName, payload.Variables)
	env.ContentType = contentType
	return env, nil
}

// Variables decodes the variables object. A missing object decodes to nil.
func (e Envelope) Variables() (map[string]any, error) {
	if len(e.VariablesRaw) == 0 {
		return nil, nil
	}
	var vars map[string]any
	if err := json.Unmarshal(e.VariablesRaw, &vars); err != nil {
		return nil, fmt.Errorf("variables must be a JSON object: %w", err)
	}
	return vars, nil
}
