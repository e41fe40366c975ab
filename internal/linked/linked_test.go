// Copyright 2025 James Ross
package linked

import (
	"encoding/json"
	"testing"

	"github.com/TGAC/grassroots-core/internal/job"
	"github.com/TGAC/grassroots-core/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodedResult(t *testing.T, raw string) interface{} {
	t.Helper()
	var v interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestProcessMappedParametersEmitsDownstreamRequest(t *testing.T) {
	j := job.New("s1", "run-1", "s1_job")
	j.Status = job.StatusSucceeded
	result := decodedResult(t, `{"x":"k"}`)

	linkedSvc := &service.LinkedService{
		OutputServiceName: "S2",
		MappedParameters: []service.MappedParameter{
			{InputPath: "/x", OutputParameterName: "keyword", Required: true},
		},
	}

	require.NoError(t, Process(linkedSvc, j, result, NewGenerateRegistry()))
	require.Len(t, j.LinkedServicesOutput, 1)
	assert.Contains(t, string(j.LinkedServicesOutput[0]), `"service":"S2"`)
	assert.Contains(t, string(j.LinkedServicesOutput[0]), `"keyword"`)
}

func TestProcessRequiredMissingAbortsArc(t *testing.T) {
	j := job.New("s1", "run-1", "s1_job")
	j.Status = job.StatusSucceeded
	result := decodedResult(t, `{"y":"k"}`)

	linkedSvc := &service.LinkedService{
		OutputServiceName: "S2",
		MappedParameters: []service.MappedParameter{
			{InputPath: "/x", OutputParameterName: "keyword", Required: true},
		},
	}

	require.NoError(t, Process(linkedSvc, j, result, NewGenerateRegistry()))
	assert.Len(t, j.LinkedServicesOutput, 0)
	assert.Contains(t, j.Errors, job.RuntimeErrorsKey)
}

func TestProcessOnlyFiresOnSuccess(t *testing.T) {
	j := job.New("s1", "run-1", "s1_job")
	j.Status = job.StatusStarted
	result := decodedResult(t, `{"x":"k"}`)

	linkedSvc := &service.LinkedService{OutputServiceName: "S2"}
	require.NoError(t, Process(linkedSvc, j, result, NewGenerateRegistry()))
	assert.Len(t, j.LinkedServicesOutput, 0)
}

func TestProcessGenerateFunction(t *testing.T) {
	j := job.New("s1", "run-1", "s1_job")
	j.Status = job.StatusSucceeded
	result := decodedResult(t, `{"x":"k"}`)

	registry := NewGenerateRegistry()
	registry.Register("custom_gen", func(linked *service.LinkedService, jobResult interface{}, j *job.ServiceJob) (json.RawMessage, error) {
		return json.RawMessage(`{"service":"S3","run":true}`), nil
	})

	linkedSvc := &service.LinkedService{OutputServiceName: "S3", GenerateFunctionName: "custom_gen"}
	require.NoError(t, Process(linkedSvc, j, result, registry))
	require.Len(t, j.LinkedServicesOutput, 1)
	assert.Contains(t, string(j.LinkedServicesOutput[0]), "S3")
}

func TestProcessDollarValueSetsBooleanParameter(t *testing.T) {
	j := job.New("s1", "run-1", "s1_job")
	j.Status = job.StatusSucceeded
	result := decodedResult(t, `{"x":"verbose"}`)

	linkedSvc := &service.LinkedService{
		OutputServiceName: "S2",
		MappedParameters: []service.MappedParameter{
			{InputPath: "/x", OutputParameterName: "$value"},
		},
	}
	require.NoError(t, Process(linkedSvc, j, result, NewGenerateRegistry()))
	require.Len(t, j.LinkedServicesOutput, 1)
	assert.Contains(t, string(j.LinkedServicesOutput[0]), `{"name":"verbose","current_value":true}`)
}
