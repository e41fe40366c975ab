// Copyright 2025 James Ross
package registry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/TGAC/grassroots-core/internal/config"
	"github.com/TGAC/grassroots-core/internal/job"
	"github.com/TGAC/grassroots-core/internal/param"
	"github.com/TGAC/grassroots-core/internal/providerstate"
	"github.com/TGAC/grassroots-core/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoImpl struct{}

func (echoImpl) GetParameters(user interface{}) (*param.Set, error) { return param.NewSet(), nil }
func (echoImpl) Run(ctx context.Context, params *param.Set, user interface{}, providers *providerstate.Table) (*job.Set, error) {
	set := job.NewSet()
	set.Add(job.New("echo", "run-1", "echo_job"))
	return set, nil
}
func (echoImpl) Close() error { return nil }

func writeStub(t *testing.T, dir, name string, stub ReferenceStub) {
	t.Helper()
	raw, err := json.Marshal(stub)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), raw, 0o644))
}

func TestPluginRegistryAcquireReleaseRefcounting(t *testing.T) {
	reg := NewPluginRegistry()
	reg.RegisterFactory("echo_plugin", func(cfg map[string]interface{}) (service.Implementation, error) {
		return echoImpl{}, nil
	})

	_, err := reg.Acquire("echo_plugin", nil)
	require.NoError(t, err)
	_, err = reg.Acquire("echo_plugin", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, reg.HandleCount("echo_plugin"))

	require.NoError(t, reg.Release("echo_plugin"))
	assert.Equal(t, 1, reg.HandleCount("echo_plugin"))
	require.NoError(t, reg.Release("echo_plugin"))
	assert.Equal(t, 0, reg.HandleCount("echo_plugin"))
}

func TestAcquireUnknownPluginErrors(t *testing.T) {
	reg := NewPluginRegistry()
	_, err := reg.Acquire("missing", nil)
	require.Error(t, err)
}

func TestReloadBuildsServicesFromStubsAndFiltersDisabled(t *testing.T) {
	dir := t.TempDir()
	refDir := filepath.Join(dir, "references")
	require.NoError(t, os.Mkdir(refDir, 0o755))

	writeStub(t, refDir, "echo.json", ReferenceStub{
		Plugin: "echo_plugin",
		Operations: []OperationStub{
			{Name: "echo"},
			{Name: "echo_disabled"},
		},
	})

	plugins := NewPluginRegistry()
	plugins.RegisterFactory("echo_plugin", func(cfg map[string]interface{}) (service.Implementation, error) {
		return echoImpl{}, nil
	})

	reg := New(config.Registry{ReferencesDir: refDir, ConfigDir: dir, DisabledServices: []string{"echo_disabled"}}, plugins, nil)
	require.NoError(t, reg.Reload())

	services := reg.Services()
	require.Len(t, services, 1)
	assert.Equal(t, "echo", services[0].Name)
}

func TestByNameOrAliasAndByKeyword(t *testing.T) {
	svc := service.New("echo", service.Synchronous, echoImpl{})
	svc.Alias = "e"
	services := []*service.Service{svc}

	assert.Equal(t, svc, ByNameOrAlias(services, "echo"))
	assert.Equal(t, svc, ByNameOrAlias(services, "e"))
	assert.Nil(t, ByNameOrAlias(services, "missing"))
	assert.Empty(t, ByKeyword(services, nil), "echo exposes no keyword parameter")
}

func TestSortByNameCaseInsensitive(t *testing.T) {
	a := service.New("Banana", service.Synchronous, echoImpl{})
	b := service.New("apple", service.Synchronous, echoImpl{})
	sorted := SortByName([]*service.Service{a, b})
	assert.Equal(t, "apple", sorted[0].Name)
	assert.Equal(t, "Banana", sorted[1].Name)
}
