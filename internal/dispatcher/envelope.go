// Copyright 2025 James Ross

// Package dispatcher implements the server dispatcher:
// top-level request routing, response envelope construction, and
// server_uri proxying to a named peer.
//
// Grounded on an admin HTTP front door shape (route table, recovery
// middleware, structured request logging) repurposed as a JSON-envelope
// dispatcher core rather than a REST router.
package dispatcher

import (
	"encoding/json"
	"fmt"

	"github.com/TGAC/grassroots-core/internal/providerstate"
	"github.com/TGAC/grassroots-core/internal/schema"
)

// Op is one of the recognised top-level operation tags.
type Op string

const (
	OpListAllServices        Op = "LIST_ALL_SERVICES"
	OpGetSchemaVersion       Op = "GET_SCHEMA_VERSION"
	OpListInterestedServices Op = "LIST_INTERESTED_SERVICES"
	OpGetNamedServices       Op = "GET_NAMED_SERVICES"
	OpGetServiceInfo         Op = "GET_SERVICE_INFO"
	OpRunKeywordServices     Op = "RUN_KEYWORD_SERVICES"
	OpGetServiceResults      Op = "GET_SERVICE_RESULTS"
	OpGetResource            Op = "GET_RESOURCE"
	OpServerStatus           Op = "SERVER_STATUS"
)

// Operation is the polymorphic `operations` field: either a bare tag
// string, or an object `{operation, ...extra}` carrying op-specific
// arguments (resource, names, keyword, uuids) alongside the tag.
type Operation struct {
	Tag   Op
	Extra map[string]json.RawMessage
}

// UnmarshalJSON accepts either a JSON string or an object with an
// "operation" key.
func (o *Operation) UnmarshalJSON(raw []byte) error {
	var tag string
	if err := json.Unmarshal(raw, &tag); err == nil {
		o.Tag = Op(tag)
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return fmt.Errorf("dispatcher: operations field is neither a string nor an object: %w", err)
	}
	opRaw, ok := obj["operation"]
	if !ok {
		return fmt.Errorf("dispatcher: operations object missing \"operation\" key")
	}
	if err := json.Unmarshal(opRaw, &tag); err != nil {
		return fmt.Errorf("dispatcher: operations.operation is not a string: %w", err)
	}
	o.Tag = Op(tag)
	delete(obj, "operation")
	o.Extra = obj
	return nil
}

// extraString extracts a string-valued extra field.
func (o Operation) extraString(key string) (string, bool) {
	raw, ok := o.Extra[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// extraStrings extracts a []string-valued extra field.
func (o Operation) extraStrings(key string) []string {
	raw, ok := o.Extra[key]
	if !ok {
		return nil
	}
	var s []string
	_ = json.Unmarshal(raw, &s)
	return s
}

// ServiceEntry is one entry of the request's `services` array.
type ServiceEntry struct {
	Name     string          `json:"name"`
	Run      bool            `json:"run"`
	ParamSet json.RawMessage `json:"param_set,omitempty"`
}

// Request is the top-level request envelope.
type Request struct {
	Header struct {
		Schema schema.Version `json:"schema"`
	} `json:"header"`
	Config struct {
		Credentials json.RawMessage `json:"credentials,omitempty"`
	} `json:"config"`
	Operations *Operation             `json:"operations,omitempty"`
	Services   []ServiceEntry         `json:"services,omitempty"`
	Servers    []providerstate.Pair   `json:"servers,omitempty"`
	ServerURI  string                 `json:"server_uri,omitempty"`
}

// Response is the top-level response envelope.
type Response struct {
	Header struct {
		Schema schema.Version `json:"schema"`
		Error  string         `json:"error,omitempty"`
	} `json:"header"`
	Services       interface{} `json:"services,omitempty"`
	ServiceResults interface{} `json:"service_results,omitempty"`
	Resource       interface{} `json:"resource,omitempty"`
	ServerStatus   interface{} `json:"server_status,omitempty"`
	ServerUUID     string      `json:"server_uuid,omitempty"`
}

// buildResponse constructs an initialised response envelope carrying
// the server's schema version.
func buildResponse(schemaVersion schema.Version, serverUUID string) *Response {
	resp := &Response{ServerUUID: serverUUID}
	resp.Header.Schema = schemaVersion
	return resp
}

// errorResponse builds a protocol-error response: no
// services are invoked, the error is carried at the header.
func errorResponse(schemaVersion schema.Version, serverUUID string, err error) *Response {
	resp := buildResponse(schemaVersion, serverUUID)
	resp.Header.Error = err.Error()
	return resp
}
