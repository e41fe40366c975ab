// Copyright 2025 James Ross
package job

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// RuntimeErrorsKey is the reserved errors key used for errors that are
// not attributable to a single parameter.
const RuntimeErrorsKey = "_runtime"

// ParamError is the per-parameter error shape:
// `{grassroots_type, errors:[...]}`.
type ParamError struct {
	GrassrootsType string   `json:"grassroots_type"`
	Errors         []string `json:"errors"`
}

// UpdateFunc refreshes a job's status/results from its backing service.
// CalculateResultsFunc computes results the first time a job is
// observed SUCCEEDED/PARTIALLY_SUCCEEDED with none yet recorded.
type UpdateFunc func(j *ServiceJob) error
type CalculateResultsFunc func(j *ServiceJob) (interface{}, error)
type FreeFunc func(j *ServiceJob)

// ServiceJob is one execution instance of a Service.
type ServiceJob struct {
	UUID                string                 `json:"uuid"`
	ServiceName          string                 `json:"service"`
	Name                 string                 `json:"name"`
	Description          string                 `json:"description,omitempty"`
	URL                  string                 `json:"url,omitempty"`
	Status               Status                 `json:"-"`
	Results              interface{}            `json:"results,omitempty"`
	ResultsOmitted       bool                   `json:"results_omitted,omitempty"`
	Metadata             map[string]interface{} `json:"metadata,omitempty"`
	Errors               map[string]ParamError  `json:"errors,omitempty"`
	LinkedServicesOutput []json.RawMessage      `json:"linked_services,omitempty"`
	TypeTag              string                 `json:"job_type"`

	mu                sync.Mutex
	isUpdating        bool
	UpdateFn          UpdateFunc            `json:"-"`
	FreeFn            FreeFunc              `json:"-"`
	CalculateResultsFn CalculateResultsFunc `json:"-"`
}

// New creates a ServiceJob with a fresh uuid, in IDLE status.
func New(serviceName, name, typeTag string) *ServiceJob {
	return &ServiceJob{
		UUID:        uuid.NewString(),
		ServiceName: serviceName,
		Name:        name,
		TypeTag:     typeTag,
		Status:      StatusIdle,
	}
}

// RecordParamError records a validation error for a parameter (or the
// reserved runtime key).
func (j *ServiceJob) RecordParamError(paramName, grassrootsType string, messages ...string) {
	if j.Errors == nil {
		j.Errors = make(map[string]ParamError)
	}
	j.Errors[paramName] = ParamError{GrassrootsType: grassrootsType, Errors: messages}
}

// Update invokes the job's update callback, guarded by an is-updating
// flag: reentrant calls (e.g. triggered from within a linked-service
// chain calling back into the source job) are a no-op.
func (j *ServiceJob) Update() error {
	j.mu.Lock()
	if j.isUpdating {
		j.mu.Unlock()
		return nil
	}
	j.isUpdating = true
	j.mu.Unlock()

	defer func() {
		j.mu.Lock()
		j.isUpdating = false
		j.mu.Unlock()
	}()

	if j.UpdateFn != nil && (!j.Status.IsTerminal() || (j.Status.IsSuccess() && j.Results == nil && !j.ResultsOmitted)) {
		if err := j.UpdateFn(j); err != nil {
			return err
		}
	}

	if j.Status.IsSuccess() && j.Results == nil && !j.ResultsOmitted && j.CalculateResultsFn != nil {
		results, err := j.CalculateResultsFn(j)
		if err != nil {
			j.RecordParamError(RuntimeErrorsKey, "", fmt.Sprintf("calculate-results: %v", err))
			return nil
		}
		j.Results = results
	}
	return nil
}

// Free invokes the job's release callback, if any.
func (j *ServiceJob) Free() {
	if j.FreeFn != nil {
		j.FreeFn(j)
	}
}

// StatusText returns the status's text form, the value AsJSON writes
// under "status".
func (j *ServiceJob) StatusText() string { return j.Status.String() }

// AsJSON renders the job's persisted/response wire shape, including the
// mandatory service/job_type/uuid/status_value/status fields.
func (j *ServiceJob) AsJSON() ([]byte, error) {
	type wire struct {
		Service        string                 `json:"service"`
		JobType        string                 `json:"job_type"`
		UUID           string                 `json:"uuid"`
		Name           string                 `json:"name"`
		Description    string                 `json:"description,omitempty"`
		URL            string                 `json:"url,omitempty"`
		StatusValue    int                    `json:"status_value"`
		Status         string                 `json:"status"`
		Errors         map[string]ParamError  `json:"errors,omitempty"`
		Metadata       map[string]interface{} `json:"metadata,omitempty"`
		Results        interface{}            `json:"results,omitempty"`
		ResultsOmitted bool                   `json:"results_omitted,omitempty"`
		LinkedServices []json.RawMessage      `json:"linked_services,omitempty"`
	}
	w := wire{
		Service:        j.ServiceName,
		JobType:        j.TypeTag,
		UUID:           j.UUID,
		Name:           j.Name,
		Description:    j.Description,
		URL:            j.URL,
		StatusValue:    int(j.Status),
		Status:         j.Status.String(),
		Errors:         j.Errors,
		Metadata:       j.Metadata,
		Results:        j.Results,
		ResultsOmitted: j.ResultsOmitted,
		LinkedServices: j.LinkedServicesOutput,
	}
	return json.Marshal(w)
}

// RemoteServiceJob is a ServiceJob produced by a paired-service
// dispatch to a peer, carrying the peer's own identity for the job.
type RemoteServiceJob struct {
	ServiceJob
	RemoteURI         string `json:"remote_uri"`
	RemoteServiceName string `json:"remote_service_name"`
	RemoteJobID       string `json:"remote_job_id"`
}

// Set is the ServiceJobSet: an ordered sequence of jobs owned by one
// Service, guarded externally by the Service's Sync
// primitive when present.
type Set struct {
	mu   sync.RWMutex
	jobs []*ServiceJob
}

// NewSet returns an empty ServiceJobSet.
func NewSet() *Set { return &Set{} }

// Add appends a job, preserving insertion order.
func (s *Set) Add(j *ServiceJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, j)
}

// Jobs returns a snapshot of the set's jobs, in insertion order.
func (s *Set) Jobs() []*ServiceJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ServiceJob, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// Get returns the job with the given uuid, or nil.
func (s *Set) Get(uuid string) *ServiceJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, j := range s.jobs {
		if j.UUID == uuid {
			return j
		}
	}
	return nil
}

// IsLive reports whether any job in the set has a live status
// (PENDING or STARTED).
func (s *Set) IsLive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, j := range s.jobs {
		if j.Status.IsLive() {
			return true
		}
	}
	return false
}
