// Copyright 2025 James Ross
package dispatcher

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/TGAC/grassroots-core/internal/config"
	"github.com/TGAC/grassroots-core/internal/job"
	"github.com/TGAC/grassroots-core/internal/jobsmanager"
	"github.com/TGAC/grassroots-core/internal/param"
	"github.com/TGAC/grassroots-core/internal/providerstate"
	"github.com/TGAC/grassroots-core/internal/registry"
	"github.com/TGAC/grassroots-core/internal/schema"
	"github.com/TGAC/grassroots-core/internal/service"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoImpl struct{}

func (echoImpl) GetParameters(user interface{}) (*param.Set, error) {
	set := param.NewSet()
	p, _ := param.Allocate(param.TypeString, "text", "Text", "", param.LevelBasic, "", "")
	_ = set.AddParameter("core", p)
	return set, nil
}

func (echoImpl) Run(ctx context.Context, params *param.Set, user interface{}, providers *providerstate.Table) (*job.Set, error) {
	set := job.NewSet()
	j := job.New("echo", "run", "echo_job")
	j.Status = job.StatusSucceeded
	if p := params.Get("text"); p != nil {
		j.Results = p.GetCurrent()
	}
	set.Add(j)
	return set, nil
}

func (echoImpl) Close() error { return nil }

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	reg := registry.New(config.Registry{}, registry.NewPluginRegistry(), nil)
	reg.RegisterNative(service.New("echo", service.Synchronous, echoImpl{}))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	jm := jobsmanager.New(client, "grassroots:jobs:test", nil, nil)

	return &Dispatcher{
		SchemaVersion: schema.Version{Major: 1, Minor: 0},
		Registry:      reg,
		JobsManager:   jm,
		SelfURI:       "https://self",
	}
}

func TestDispatchSingleServiceSyncRun(t *testing.T) {
	d := newTestDispatcher(t)
	raw := []byte(`{"services":[{"name":"echo","run":true,"param_set":{"params":[{"name":"text","current_value":"hi"}]}}]}`)

	resp := d.Dispatch(context.Background(), raw)
	results, ok := resp.ServiceResults.([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, results, 1)
	assert.Equal(t, 5, results[0]["status_value"])
	assert.Equal(t, "hi", results[0]["results"])
}

func TestDispatchMalformedRequestYieldsErrorResponse(t *testing.T) {
	d := newTestDispatcher(t)
	resp := d.Dispatch(context.Background(), []byte(`not json`))
	assert.NotEmpty(t, resp.Header.Error)
}

func TestDispatchUnknownOperation(t *testing.T) {
	d := newTestDispatcher(t)
	resp := d.Dispatch(context.Background(), []byte(`{"operations":"BOGUS_OP"}`))
	assert.Contains(t, resp.Header.Error, "unknown operation")
}

func TestDispatchListAllServices(t *testing.T) {
	d := newTestDispatcher(t)
	resp := d.Dispatch(context.Background(), []byte(`{"operations":"LIST_ALL_SERVICES"}`))
	services, ok := resp.Services.([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, services, 1)
	assert.Equal(t, "echo", services[0]["name"])
}

func TestDispatchGetServiceResultsPollsJobsManager(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	j := job.New("echo", "run", "echo_job")
	j.Status = job.StatusSucceeded
	j.Results = "cached"
	require.NoError(t, d.JobsManager.Add(ctx, j))

	raw, err := json.Marshal(map[string]interface{}{
		"operations": map[string]interface{}{"operation": "GET_SERVICE_RESULTS", "uuids": []string{j.UUID}},
	})
	require.NoError(t, err)

	resp := d.Dispatch(ctx, raw)
	results, ok := resp.ServiceResults.([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, results, 1)
	assert.Equal(t, j.UUID, results[0]["uuid"])
}
