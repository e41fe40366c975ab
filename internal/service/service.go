// Copyright 2025 James Ross

// Package service implements Service / ServiceData:
// the per-service vtable, configuration, paired-service list, and
// linked-service list.
//
// Replaces a raw plugin vtable (function pointers with open-count
// refcounting) with a Go-native redesign: here each service
// implementation is a value satisfying capability interfaces, and a
// PluginRegistry (internal/registry) owns arena-style handles rather
// than refcounting vtable pointers directly.
package service

import (
	"context"

	"github.com/TGAC/grassroots-core/internal/asynctask"
	"github.com/TGAC/grassroots-core/internal/job"
	"github.com/TGAC/grassroots-core/internal/param"
	"github.com/TGAC/grassroots-core/internal/providerstate"
	"github.com/TGAC/grassroots-core/internal/schema"
)

// Synchronicity classifies how a service's Run behaves.
type Synchronicity string

const (
	Synchronous            Synchronicity = "SYNCHRONOUS"
	AsynchronousDetached    Synchronicity = "ASYNCHRONOUS_DETACHED"
	AsynchronousAttached    Synchronicity = "ASYNCHRONOUS_ATTACHED"
)

// Implementation is the minimal capability every service must satisfy.
// Optional capabilities (MatchByResource, CustomiseJob, SerialiseJob,
// DeserialiseJob, ProcessLinkedService, GetMetadata, GetIndexingData,
// CustomParameterDecoder, ReleaseParameters, ReleaseService) are
// type-asserted at the call site, the same optional-interface idiom the
// standard library uses for io.Reader/io.ReaderFrom and similar pairs.
type Implementation interface {
	GetParameters(user interface{}) (*param.Set, error)
	Run(ctx context.Context, params *param.Set, user interface{}, providers *providerstate.Table) (*job.Set, error)
	Close() error
}

// ResourceMatcher is the optional match-by-resource capability.
type ResourceMatcher interface {
	MatchByResource(resource param.Resource) (*param.Set, bool)
}

// JobCustomiser is the optional customise-job capability.
type JobCustomiser interface {
	CustomiseJob(j *job.ServiceJob)
}

// JobSerialiser is the optional serialise-job capability. The jobs
// manager does not consult it: jobsmanager.Manager.Add always writes its
// own persisted shape.
type JobSerialiser interface {
	SerialiseJob(j *job.ServiceJob) ([]byte, error)
}

// JobDeserialiser is the optional deserialise-job capability.
type JobDeserialiser interface {
	DeserialiseJob(raw []byte) (*job.ServiceJob, error)
}

// LinkedServiceProcessor is the optional process-linked-service capability.
type LinkedServiceProcessor interface {
	ProcessLinkedService(linked *LinkedService, j *job.ServiceJob) error
}

// MetadataProvider is the optional get-metadata capability.
type MetadataProvider interface {
	GetMetadata() map[string]interface{}
}

// IndexingDataProvider is the optional get-indexing-data capability.
type IndexingDataProvider interface {
	GetIndexingData() (interface{}, error)
}

// CustomParameterDecoderProvider is the optional custom-parameter-decoder
// capability.
type CustomParameterDecoderProvider interface {
	CustomParameterDecoder() param.CustomDecoder
}

// ParameterReleaser is the optional release-parameters capability.
type ParameterReleaser interface {
	ReleaseParameters(params *param.Set)
}

// ServiceReleaser is the optional release-service capability used by
// asynchronous services to signal teardown.
type ServiceReleaser interface {
	ReleaseService()
}

// MappedParameter is one field mapping from a source job result to a
// downstream service's parameter.
type MappedParameter struct {
	InputPath          string `json:"input_path"`
	OutputParameterName string `json:"output_parameter_name"`
	Required           bool   `json:"required,omitempty"`
	MultiValued        bool   `json:"multi_valued,omitempty"`
}

// LinkedService is a directed arc from a source Service's results to a
// downstream Service's inputs.
type LinkedService struct {
	OutputServiceName    string                 `json:"output_service_name"`
	InputRoot            string                 `json:"input_root,omitempty"`
	MappedParameters     []MappedParameter      `json:"mapped_parameters,omitempty"`
	GenerateFunctionName string                 `json:"generate_function_name,omitempty"`
	Config               map[string]interface{} `json:"config,omitempty"`
}

// PairedService binds a local Service to a peer's Service.
type PairedService struct {
	PeerUUID           string             `json:"peer_uuid"`
	LocalServiceName   string             `json:"local_service_name"`
	PeerURI            string             `json:"peer_uri"`
	PeerName           string             `json:"peer_name"`
	CachedParameterSet *param.Set         `json:"-"`
	Provider           schema.Provider    `json:"provider"`
}

// Service is the per-service descriptor plus its runtime state
// (live job set, optional Sync primitive for attached services).
type Service struct {
	Name          string
	Description   string
	Alias         string
	InfoURI       string
	IconURI       string
	Synchronicity Synchronicity
	IsSpecific    bool
	PluginRef     string
	Config        map[string]interface{}
	PairedServices []*PairedService
	LinkedServices []*LinkedService
	Metadata      map[string]interface{}

	Impl Implementation

	sync *asynctask.Sync
	jobs *job.Set
}

// New constructs a Service. If synchronicity is ASYNCHRONOUS_ATTACHED, a
// Sync primitive is allocated.
func New(name string, synchronicity Synchronicity, impl Implementation) *Service {
	s := &Service{
		Name:          name,
		Synchronicity: synchronicity,
		Impl:          impl,
		jobs:          job.NewSet(),
	}
	if synchronicity == AsynchronousAttached {
		s.sync = asynctask.NewSync()
	}
	return s
}

// Lockable reports whether this service is guarded by a Sync primitive.
func (s *Service) Lockable() bool { return s.sync != nil }

// Lock acquires the service's Sync primitive, if lockable. A no-op
// otherwise, so callers can unconditionally bracket a run with
// Lock/Unlock.
func (s *Service) Lock() {
	if s.sync != nil {
		s.sync.Acquire()
	}
}

// Unlock releases the service's Sync primitive, if lockable.
func (s *Service) Unlock() {
	if s.sync != nil {
		s.sync.Release()
	}
}

// Sync exposes the underlying primitive for wait-while/signal use by a
// service's own background-task code; nil for non-attached services.
func (s *Service) Sync() *asynctask.Sync { return s.sync }

// Jobs returns the service's live ServiceJobSet.
func (s *Service) Jobs() *job.Set { return s.jobs }

// IsLive reports whether the service has any PENDING/STARTED job.
func (s *Service) IsLive() bool { return asynctask.IsServiceLive(s.jobs) }

// MatchByResource delegates to the optional ResourceMatcher capability;
// ok is false if the service does not implement it or does not match.
func (s *Service) MatchByResource(resource param.Resource) (set *param.Set, ok bool) {
	matcher, implements := s.Impl.(ResourceMatcher)
	if !implements {
		return nil, false
	}
	return matcher.MatchByResource(resource)
}

// HasKeywordParameter reports whether the service's parameter schema
// contains a keyword-typed parameter, per the by-keyword matcher's
// convention: a parameter whose ParamSetKey is "keyword" (its value type
// is not checked).
func (s *Service) HasKeywordParameter(user interface{}) bool {
	params, err := s.Impl.GetParameters(user)
	if err != nil || params == nil {
		return false
	}
	for _, p := range params.Parameters() {
		if p.ParamSetKey == "keyword" {
			return true
		}
	}
	return false
}

// CustomiseJob delegates to the optional JobCustomiser capability.
func (s *Service) CustomiseJob(j *job.ServiceJob) {
	if customiser, ok := s.Impl.(JobCustomiser); ok {
		customiser.CustomiseJob(j)
	}
}

// GetMetadata returns the optional GetMetadata capability's result, or nil.
func (s *Service) GetMetadata() map[string]interface{} {
	if provider, ok := s.Impl.(MetadataProvider); ok {
		return provider.GetMetadata()
	}
	return nil
}

// GetIndexingData returns the optional GetIndexingData capability's
// result, or nil with no error if unimplemented.
func (s *Service) GetIndexingData() (interface{}, error) {
	if provider, ok := s.Impl.(IndexingDataProvider); ok {
		return provider.GetIndexingData()
	}
	return nil, nil
}

// CustomParameterDecoder returns the optional custom decoder, or nil.
func (s *Service) CustomParameterDecoder() param.CustomDecoder {
	if provider, ok := s.Impl.(CustomParameterDecoderProvider); ok {
		return provider.CustomParameterDecoder()
	}
	return nil
}

// ReleaseParameters delegates to the optional ParameterReleaser capability.
func (s *Service) ReleaseParameters(params *param.Set) {
	if releaser, ok := s.Impl.(ParameterReleaser); ok {
		releaser.ReleaseParameters(params)
	}
}

// Close delegates to the required Close capability and, for async
// services, cancels any pending wait-while before releasing.
func (s *Service) Close() error {
	if s.sync != nil {
		s.sync.Cancel()
	}
	if releaser, ok := s.Impl.(ServiceReleaser); ok {
		releaser.ReleaseService()
	}
	return s.Impl.Close()
}
