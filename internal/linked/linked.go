// Copyright 2025 James Ross

// Package linked implements the linked-service engine:
// when a ServiceJob succeeds, it extracts declared fields from the
// result and synthesises a follow-on request for another service.
package linked

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/TGAC/grassroots-core/internal/job"
	"github.com/TGAC/grassroots-core/internal/service"
)

// GenerateFunc is the owning-plugin symbol a LinkedService may name via
// generate-function-name. It owns the generation of a
// follow-on request entirely.
type GenerateFunc func(linked *service.LinkedService, jobResult interface{}, j *job.ServiceJob) (json.RawMessage, error)

// GenerateRegistry resolves a generate-function-name to its
// implementation. Plugins register theirs at init time, the same
// in-process pattern internal/registry uses for native services.
type GenerateRegistry struct {
	fns map[string]GenerateFunc
}

// NewGenerateRegistry returns an empty registry.
func NewGenerateRegistry() *GenerateRegistry {
	return &GenerateRegistry{fns: make(map[string]GenerateFunc)}
}

// Register adds a named generate function.
func (r *GenerateRegistry) Register(name string, fn GenerateFunc) {
	r.fns[name] = fn
}

// runRequest is the downstream `{service, run, param_set}` shape
// appended to a job's linked_services output.
type runRequest struct {
	Service  string         `json:"service"`
	Run      bool           `json:"run"`
	ParamSet paramSetShape  `json:"param_set"`
}

type paramSetShape struct {
	Params []paramEntry `json:"params"`
}

type paramEntry struct {
	Name         string      `json:"name"`
	CurrentValue interface{} `json:"current_value"`
}

// Process fires a single LinkedService arc for a successful job,
// appending its output to j.LinkedServicesOutput. It is a no-op unless
// j.Status is SUCCEEDED or PARTIALLY_SUCCEEDED.
func Process(linked *service.LinkedService, j *job.ServiceJob, jobResult interface{}, generators *GenerateRegistry) error {
	if !j.Status.IsSuccess() {
		return nil
	}

	if linked.GenerateFunctionName != "" {
		fn, ok := generators.fns[linked.GenerateFunctionName]
		if !ok {
			j.RecordParamError(job.RuntimeErrorsKey, "", fmt.Sprintf("linked service: unknown generate function %q", linked.GenerateFunctionName))
			return nil
		}
		raw, err := fn(linked, jobResult, j)
		if err != nil {
			j.RecordParamError(job.RuntimeErrorsKey, "", fmt.Sprintf("linked service: generate: %v", err))
			return nil
		}
		j.LinkedServicesOutput = append(j.LinkedServicesOutput, raw)
		return nil
	}

	return processMapped(linked, j, jobResult)
}

func processMapped(linked *service.LinkedService, j *job.ServiceJob, jobResult interface{}) error {
	req := runRequest{Service: linked.OutputServiceName, Run: true}

	for _, mp := range linked.MappedParameters {
		v, found := resolvePath(jobResult, linked.InputRoot+mp.InputPath)
		if !found {
			if mp.Required {
				j.RecordParamError(job.RuntimeErrorsKey, "", fmt.Sprintf("linked service %q: required input %q missing", linked.OutputServiceName, mp.InputPath))
				return nil
			}
			continue
		}

		if mp.OutputParameterName == "$value" {
			// "the input string names the boolean
			// parameter to set true".
			name := fmt.Sprintf("%v", v)
			req.ParamSet.Params = append(req.ParamSet.Params, paramEntry{Name: name, CurrentValue: true})
			continue
		}

		if mp.MultiValued {
			if values, ok := v.([]interface{}); ok {
				req.ParamSet.Params = append(req.ParamSet.Params, paramEntry{Name: mp.OutputParameterName, CurrentValue: values})
				continue
			}
		}
		req.ParamSet.Params = append(req.ParamSet.Params, paramEntry{Name: mp.OutputParameterName, CurrentValue: v})
	}

	raw, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("linked: marshal downstream request: %w", err)
	}
	j.LinkedServicesOutput = append(j.LinkedServicesOutput, raw)
	return nil
}

// resolvePath walks a JSON-pointer-like "/a/b/0/c" path through a
// decoded JSON value (map[string]interface{} / []interface{}), as
// produced by encoding/json's default unmarshal-into-interface{}.
func resolvePath(root interface{}, path string) (interface{}, bool) {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return root, root != nil
	}
	cur := root
	for _, seg := range strings.Split(path, "/") {
		switch node := cur.(type) {
		case map[string]interface{}:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []interface{}:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}
