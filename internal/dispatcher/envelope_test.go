// Copyright 2025 James Ross
package dispatcher

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationUnmarshalBareString(t *testing.T) {
	var op Operation
	require.NoError(t, json.Unmarshal([]byte(`"LIST_ALL_SERVICES"`), &op))
	assert.Equal(t, OpListAllServices, op.Tag)
}

func TestOperationUnmarshalObjectWithExtras(t *testing.T) {
	var op Operation
	raw := []byte(`{"operation":"GET_NAMED_SERVICES","names":["blast","echo"]}`)
	require.NoError(t, json.Unmarshal(raw, &op))
	assert.Equal(t, OpGetNamedServices, op.Tag)
	assert.Equal(t, []string{"blast", "echo"}, op.extraStrings("names"))
}

func TestRequestUnmarshalFullEnvelope(t *testing.T) {
	raw := []byte(`{
		"header": {"schema": {"major": 1, "minor": 0}},
		"operations": "SERVER_STATUS",
		"servers": [{"server_uri": "https://peer", "service_name": "A"}]
	}`)
	var req Request
	require.NoError(t, json.Unmarshal(raw, &req))
	assert.Equal(t, 1, req.Header.Schema.Major)
	assert.Equal(t, OpServerStatus, req.Operations.Tag)
	require.Len(t, req.Servers, 1)
	assert.Equal(t, "https://peer", req.Servers[0].ServerURI)
}
