// Copyright 2025 James Ross
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/TGAC/grassroots-core/internal/service"
)

// OperationStub is one `operation` entry within a reference stub: the
// plugin's reference-services entry point constructs one Service per
// operation entry in the stub.
type OperationStub struct {
	Name          string                 `json:"name"`
	Description   string                 `json:"description,omitempty"`
	Alias         string                 `json:"alias,omitempty"`
	Synchronicity string                 `json:"synchronicity,omitempty"`
	Config        map[string]interface{} `json:"config,omitempty"`
}

// ReferenceStub is the JSON stub that parameterises a generic backing
// plugin.
type ReferenceStub struct {
	Plugin     string                 `json:"plugin"`
	Operations []OperationStub        `json:"operations"`
	Config     map[string]interface{} `json:"config,omitempty"`
}

// LoadReferenceStub reads and decodes one reference stub file.
func LoadReferenceStub(path string) (*ReferenceStub, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: read reference stub %s: %w", path, err)
	}
	var stub ReferenceStub
	if err := json.Unmarshal(raw, &stub); err != nil {
		return nil, fmt.Errorf("registry: decode reference stub %s: %w", path, err)
	}
	return &stub, nil
}

// ListReferenceStubs globs every *.json file directly under dir.
func ListReferenceStubs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("registry: read references dir %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	return paths, nil
}

func synchronicityOf(s string) service.Synchronicity {
	switch service.Synchronicity(s) {
	case service.AsynchronousDetached:
		return service.AsynchronousDetached
	case service.AsynchronousAttached:
		return service.AsynchronousAttached
	default:
		return service.Synchronous
	}
}

// BuildServicesFromStub constructs one Service per operation entry in
// the stub, acquiring the backing plugin once per operation (the
// registry's handle counting naturally shares one plugin instance
// across operations that reuse the same plugin name).
func BuildServicesFromStub(plugins *PluginRegistry, stub *ReferenceStub) ([]*service.Service, error) {
	var out []*service.Service
	for _, op := range stub.Operations {
		merged := mergeConfig(stub.Config, op.Config)
		impl, err := plugins.Acquire(stub.Plugin, merged)
		if err != nil {
			return nil, fmt.Errorf("registry: reference service %q: %w", op.Name, err)
		}
		svc := service.New(op.Name, synchronicityOf(op.Synchronicity), impl)
		svc.Description = op.Description
		svc.Alias = op.Alias
		svc.PluginRef = stub.Plugin
		svc.Config = merged
		svc.IsSpecific = true
		out = append(out, svc)
	}
	return out, nil
}

func mergeConfig(base, override map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}
