// Copyright 2025 James Ross
package service

import (
	"context"
	"fmt"

	"github.com/TGAC/grassroots-core/internal/job"
	"github.com/TGAC/grassroots-core/internal/param"
	"github.com/TGAC/grassroots-core/internal/providerstate"
)

// Run executes run operation, steps 1-3 and 5 (step 4,
// the paired-service fan-out, is orchestrated by internal/federation
// since it requires network access and the providers-state table is
// shared across the whole request, not just this one service):
//
//  1. Acquire the service's lock, if lockable.
//  2. Register the service as in-flight in the providers-state table.
//  3. Invoke the service's Run callback to produce a ServiceJobSet.
//  5. Release the lock.
//
// Every job the implementation produces is also appended to the
// service's own live job set, giving callers a single place to look up
// jobs by uuid without threading the returned set through further code.
func Run(ctx context.Context, s *Service, params *param.Set, user interface{}, providers *providerstate.Table, selfURI string) (*job.Set, error) {
	s.Lock()
	defer s.Unlock()

	providers.MarkVisited(selfURI, s.Name)

	produced, err := s.Impl.Run(ctx, params, user, providers)
	if err != nil {
		return nil, fmt.Errorf("service %q: run: %w", s.Name, err)
	}
	for _, j := range produced.Jobs() {
		s.CustomiseJob(j)
		s.jobs.Add(j)
	}
	return produced, nil
}
