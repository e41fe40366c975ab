// Copyright 2025 James Ross
package service

import (
	"context"
	"testing"

	"github.com/TGAC/grassroots-core/internal/job"
	"github.com/TGAC/grassroots-core/internal/param"
	"github.com/TGAC/grassroots-core/internal/providerstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeImpl struct {
	runCalled bool
	metadata  map[string]interface{}
}

func (f *fakeImpl) GetParameters(user interface{}) (*param.Set, error) {
	set := param.NewSet()
	p, _ := param.Allocate(param.TypeString, "keyword", "Keyword", "", param.LevelBasic, "", "")
	p.ParamSetKey = "keyword"
	_ = set.AddParameter("core", p)
	return set, nil
}

func (f *fakeImpl) Run(ctx context.Context, params *param.Set, user interface{}, providers *providerstate.Table) (*job.Set, error) {
	f.runCalled = true
	set := job.NewSet()
	j := job.New("echo", "run-1", "echo_job")
	j.Status = job.StatusSucceeded
	set.Add(j)
	return set, nil
}

func (f *fakeImpl) Close() error { return nil }

func (f *fakeImpl) GetMetadata() map[string]interface{} { return f.metadata }

func TestRunLocksAndMarksProvidersState(t *testing.T) {
	impl := &fakeImpl{}
	s := New("echo", AsynchronousAttached, impl)
	providers := providerstate.New()

	set, err := Run(context.Background(), s, param.NewSet(), nil, providers, "https://self")
	require.NoError(t, err)
	assert.True(t, impl.runCalled)
	assert.Len(t, set.Jobs(), 1)
	assert.True(t, providers.Contains("https://self", "echo"))
	assert.Len(t, s.Jobs().Jobs(), 1)
}

func TestLockableOnlyForAsyncAttached(t *testing.T) {
	sync := New("echo", Synchronous, &fakeImpl{})
	assert.False(t, sync.Lockable())

	attached := New("echo", AsynchronousAttached, &fakeImpl{})
	assert.True(t, attached.Lockable())
}

func TestHasKeywordParameter(t *testing.T) {
	s := New("echo", Synchronous, &fakeImpl{})
	assert.True(t, s.HasKeywordParameter(nil))
}

func TestGetMetadataOptionalCapability(t *testing.T) {
	impl := &fakeImpl{metadata: map[string]interface{}{"version": "1.0"}}
	s := New("echo", Synchronous, impl)
	assert.Equal(t, impl.metadata, s.GetMetadata())
}

func TestCloseCancelsSyncForAttachedServices(t *testing.T) {
	impl := &fakeImpl{}
	s := New("echo", AsynchronousAttached, impl)
	require.NoError(t, s.Close())
	assert.True(t, s.Sync().Cancelled())
}
