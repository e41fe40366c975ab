// Copyright 2025 James Ross

// Package jobsmanager implements the JobsManager: a durable
// uuid -> ServiceJob map with add/get/remove/list, backed by Redis as
// the key/value persistence backend.
package jobsmanager

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/TGAC/grassroots-core/internal/job"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deserialiser reconstructs a ServiceJob from its persisted JSON form.
// The owning Service's deserialise-job callback is consulted first;
// DefaultDeserialiser is the fallback.
type Deserialiser func(raw []byte) (*job.ServiceJob, error)

// persisted mirrors the mandatory persisted-job shape: service,
// job_type, uuid, status_value, status are required; results may be
// omitted via results_omitted.
type persisted struct {
	Service        string                 `json:"service"`
	JobType        string                 `json:"job_type"`
	UUID           string                 `json:"uuid"`
	Name           string                 `json:"name"`
	Description    string                 `json:"description,omitempty"`
	URL            string                 `json:"url,omitempty"`
	StatusValue    int                    `json:"status_value"`
	Status         string                 `json:"status"`
	Errors         map[string]job.ParamError `json:"errors,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	Results        interface{}            `json:"results,omitempty"`
	ResultsOmitted bool                   `json:"results_omitted,omitempty"`
}

// DefaultDeserialiser replays a persisted job's JSON into a ServiceJob,
// used when the owning service supplies no custom deserialise-job
// callback.
func DefaultDeserialiser(raw []byte) (*job.ServiceJob, error) {
	var p persisted
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("jobsmanager: decode persisted job: %w", err)
	}
	return &job.ServiceJob{
		UUID:           p.UUID,
		ServiceName:    p.Service,
		Name:           p.Name,
		Description:    p.Description,
		URL:            p.URL,
		Status:         job.Status(p.StatusValue),
		Errors:         p.Errors,
		Metadata:       p.Metadata,
		Results:        p.Results,
		ResultsOmitted: p.ResultsOmitted,
		TypeTag:        p.JobType,
	}, nil
}

// DeserialiserLookup resolves the owning service's custom deserialiser
// for a given service name, or nil if it supplies none.
type DeserialiserLookup func(serviceName string) Deserialiser

// Manager is the Redis-backed JobsManager.
type Manager struct {
	client     *redis.Client
	keyPrefix  string
	log        *zap.Logger
	lookupFn   DeserialiserLookup
}

// New constructs a Manager against an existing Redis client.
func New(client *redis.Client, keyPrefix string, lookup DeserialiserLookup, log *zap.Logger) *Manager {
	if keyPrefix == "" {
		keyPrefix = "grassroots:jobs"
	}
	return &Manager{client: client, keyPrefix: keyPrefix, lookupFn: lookup, log: log}
}

func (m *Manager) key(uuid string) string {
	return fmt.Sprintf("%s:%s", m.keyPrefix, uuid)
}

// Add persists a job, overwriting any existing entry with the same
// uuid, so adding the same job twice yields exactly one entry.
func (m *Manager) Add(ctx context.Context, j *job.ServiceJob) error {
	p := persisted{
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
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("jobsmanager: marshal job %s: %w", j.UUID, err)
	}
	if err := m.client.Set(ctx, m.key(j.UUID), raw, 0).Err(); err != nil {
		// Persistence error: logged, not fatal; the caller
		// keeps the job in memory and polling still works against it.
		if m.log != nil {
			m.log.Warn("jobsmanager: persistence error on add", zap.String("uuid", j.UUID), zap.Error(err))
		}
		return err
	}
	return nil
}

// Get retrieves a job by uuid, rehydrating it via the owning service's
// deserialise callback if one is registered, else DefaultDeserialiser.
func (m *Manager) Get(ctx context.Context, uuid string) (*job.ServiceJob, bool, error) {
	raw, err := m.client.Get(ctx, m.key(uuid)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		if m.log != nil {
			m.log.Warn("jobsmanager: persistence error on get", zap.String("uuid", uuid), zap.Error(err))
		}
		return nil, false, err
	}

	var p persisted
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false, fmt.Errorf("jobsmanager: decode persisted job %s: %w", uuid, err)
	}

	deserialise := Deserialiser(DefaultDeserialiser)
	if m.lookupFn != nil {
		if custom := m.lookupFn(p.Service); custom != nil {
			deserialise = custom
		}
	}
	j, err := deserialise(raw)
	if err != nil {
		return nil, false, err
	}
	return j, true, nil
}

// Remove deletes a job by uuid. If returnJob is true the removed job is
// fetched (rehydrated) before deletion and returned; a missing key is a
// no-op returning (nil, false, nil) per the Open Question resolution in
// DESIGN.md.
func (m *Manager) Remove(ctx context.Context, uuid string, returnJob bool) (*job.ServiceJob, bool, error) {
	var removed *job.ServiceJob
	if returnJob {
		j, found, err := m.Get(ctx, uuid)
		if err != nil {
			return nil, false, err
		}
		if !found {
			return nil, false, nil
		}
		removed = j
	}

	n, err := m.client.Del(ctx, m.key(uuid)).Result()
	if err != nil {
		if m.log != nil {
			m.log.Warn("jobsmanager: persistence error on remove", zap.String("uuid", uuid), zap.Error(err))
		}
		return nil, false, err
	}
	if n == 0 {
		return nil, false, nil
	}
	return removed, true, nil
}

// List returns a consistent snapshot of every job currently managed.
func (m *Manager) List(ctx context.Context) ([]*job.ServiceJob, error) {
	var jobs []*job.ServiceJob
	pattern := m.keyPrefix + ":*"
	iter := m.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		raw, err := m.client.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		var p persisted
		if err := json.Unmarshal(raw, &p); err != nil {
			continue
		}
		deserialise := Deserialiser(DefaultDeserialiser)
		if m.lookupFn != nil {
			if custom := m.lookupFn(p.Service); custom != nil {
				deserialise = custom
			}
		}
		j, err := deserialise(raw)
		if err != nil {
			continue
		}
		jobs = append(jobs, j)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].UUID < jobs[k].UUID })
	return jobs, nil
}

// PollAndRetire updates a job and applies the retirement policy: on a
// terminal failure status the job is removed on this poll; terminal
// success jobs remain until explicitly removed.
func (m *Manager) PollAndRetire(ctx context.Context, uuid string) (*job.ServiceJob, error) {
	j, found, err := m.Get(ctx, uuid)
	if err != nil || !found {
		return j, err
	}
	if err := j.Update(); err != nil && m.log != nil {
		m.log.Debug("jobsmanager: update callback error", zap.String("uuid", uuid), zap.Error(err))
	}
	if j.Status.IsFailure() {
		_, _, _ = m.Remove(ctx, uuid, false)
	} else {
		_ = m.Add(ctx, j)
	}
	return j, nil
}
