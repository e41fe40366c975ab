// Copyright 2025 James Ross
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/TGAC/grassroots-core/internal/federation"
	"github.com/TGAC/grassroots-core/internal/job"
	"github.com/TGAC/grassroots-core/internal/jobsmanager"
	"github.com/TGAC/grassroots-core/internal/linked"
	"github.com/TGAC/grassroots-core/internal/obs"
	"github.com/TGAC/grassroots-core/internal/param"
	"github.com/TGAC/grassroots-core/internal/providerstate"
	"github.com/TGAC/grassroots-core/internal/registry"
	"github.com/TGAC/grassroots-core/internal/schema"
	"github.com/TGAC/grassroots-core/internal/service"
	"go.uber.org/zap"
)

// ExternalServer is a known peer.
type ExternalServer struct {
	UUID               string
	Name               string
	URI                string
	PairedServicesMap  map[string]string
	Provider           schema.Provider
}

// Dispatcher is the GrassrootsServer handle that every request is routed through.
type Dispatcher struct {
	SchemaVersion schema.Version
	Provider      schema.Provider

	Registry    *registry.Registry
	JobsManager *jobsmanager.Manager
	Federation  *federation.Client
	Generators  *linked.GenerateRegistry
	Audit       *AuditLogger
	Log         *zap.Logger

	SelfURI         string
	ExternalServers map[string]*ExternalServer // keyed by server_uri
	Proxy           ProxyFunc
}

// ProxyFunc forwards a raw request to a peer URI and returns its raw
// response body, used for server_uri proxying.
type ProxyFunc func(ctx context.Context, peerURI string, rawRequest []byte) ([]byte, error)

// Dispatch is the top-level entry point. It never
// returns an error to the caller for request-shaped failures — every
// error path yields a JSON response.
func (d *Dispatcher) Dispatch(ctx context.Context, rawRequest []byte) (out *Response) {
	defer func() {
		if r := recover(); r != nil {
			if d.Log != nil {
				d.Log.Error("dispatcher: recovered from panic", zap.Any("panic", r))
			}
			out = errorResponse(d.SchemaVersion, d.SelfURI, fmt.Errorf("internal error: %v", r))
		}
	}()

	var req Request
	if err := json.Unmarshal(rawRequest, &req); err != nil {
		// Protocol error: malformed request JSON.
		return errorResponse(d.SchemaVersion, d.SelfURI, fmt.Errorf("malformed request: %w", err))
	}

	opTag := ""
	if req.Operations != nil {
		opTag = string(req.Operations.Tag)
		obs.RequestsReceived.WithLabelValues(opTag).Inc()
	}

	if d.Audit != nil {
		d.Audit.Record(AuditEntry{Operation: opTag, ServerURI: req.ServerURI, NumServices: len(req.Services)})
	}

	if req.ServerURI != "" {
		if target, ok := d.ExternalServers[req.ServerURI]; ok {
			return d.proxyTo(ctx, target, rawRequest)
		}
	}

	resp := buildResponse(d.SchemaVersion, d.SelfURI)

	if req.Operations != nil {
		d.handleOperation(ctx, &req, resp)
	}
	if len(req.Services) > 0 {
		d.handleServicesArray(ctx, &req, resp)
	}
	return resp
}

func (d *Dispatcher) proxyTo(ctx context.Context, target *ExternalServer, rawRequest []byte) *Response {
	if d.Proxy == nil {
		return errorResponse(d.SchemaVersion, d.SelfURI, fmt.Errorf("server_uri proxying not configured"))
	}
	raw, err := d.Proxy(ctx, target.URI, rawRequest)
	if err != nil {
		return errorResponse(d.SchemaVersion, target.UUID, fmt.Errorf("proxy to %s: %w", target.URI, err))
	}
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return errorResponse(d.SchemaVersion, target.UUID, fmt.Errorf("proxy response decode: %w", err))
	}
	resp.ServerUUID = target.UUID
	return &resp
}

func (d *Dispatcher) handleOperation(ctx context.Context, req *Request, resp *Response) {
	op := req.Operations
	switch op.Tag {
	case OpGetSchemaVersion:
		resp.Header.Schema = d.SchemaVersion

	case OpListAllServices:
		resp.Services = d.serviceDescriptors(registry.SortByName(d.Registry.Services()), false)

	case OpGetNamedServices:
		names := op.extraStrings("names")
		var out []*service.Service
		for _, n := range names {
			if s := registry.ByNameOrAlias(d.Registry.Services(), n); s != nil {
				out = append(out, s)
			}
		}
		resp.Services = d.serviceDescriptors(out, false)

	case OpGetServiceInfo:
		names := op.extraStrings("names")
		var out []*service.Service
		for _, n := range names {
			if s := registry.ByNameOrAlias(d.Registry.Services(), n); s != nil {
				out = append(out, s)
			}
		}
		resp.Services = d.serviceDescriptors(out, true)

	case OpListInterestedServices:
		res := resourceFromExtra(op)
		matched := registry.ByResource(d.Registry.Services(), res)
		resp.Services = d.serviceDescriptors(matched, false)

	case OpRunKeywordServices:
		d.handleRunKeyword(ctx, op, resp)

	case OpGetServiceResults:
		d.handleGetResults(ctx, op, resp)

	case OpGetResource:
		if name, ok := op.extraString("name"); ok {
			resp.Resource = map[string]string{"name": name}
		}

	case OpServerStatus:
		resp.ServerStatus = d.serverStatus(ctx)

	default:
		// Unknown operation: empty result set, diagnostic
		// carried at the header.
		resp.Header.Error = fmt.Sprintf("unknown operation %q", op.Tag)
	}
}

func resourceFromExtra(op *Operation) param.Resource {
	var res param.Resource
	if raw, ok := op.Extra["resource"]; ok {
		_ = json.Unmarshal(raw, &res)
	}
	return res
}

func (d *Dispatcher) serviceDescriptors(services []*service.Service, indexing bool) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(services))
	for _, s := range services {
		entry := map[string]interface{}{
			"name":          s.Name,
			"description":   s.Description,
			"alias":         s.Alias,
			"info_uri":      s.InfoURI,
			"icon_uri":      s.IconURI,
			"synchronicity": string(s.Synchronicity),
		}
		if indexing {
			if data, err := s.GetIndexingData(); err == nil && data != nil {
				entry["indexing_data"] = data
			}
		}
		if md := s.GetMetadata(); md != nil {
			entry["metadata"] = md
		}
		out = append(out, entry)
	}
	return out
}

func (d *Dispatcher) handleRunKeyword(ctx context.Context, op *Operation, resp *Response) {
	keyword, _ := op.extraString("keyword")
	all := d.Registry.Services()

	var results []map[string]interface{}
	ran := make(map[string]bool)
	for _, s := range registry.ByKeyword(all, nil) {
		ran[s.Name] = true
		params, err := s.Impl.GetParameters(nil)
		if err != nil {
			continue
		}
		if kw := params.Get("keyword"); kw != nil {
			_ = kw.SetCurrent(keyword)
		}
		jobs, err := service.Run(ctx, s, params, nil, providerstate.New(), d.SelfURI)
		if err != nil {
			results = append(results, map[string]interface{}{"service": s.Name, "error": err.Error()})
			continue
		}
		for _, j := range jobs.Jobs() {
			if d.JobsManager != nil {
				_ = d.JobsManager.Add(ctx, j)
			}
			results = append(results, jobSummary(j))
		}
		obs.ServicesRun.WithLabelValues(s.Name, string(s.Synchronicity)).Inc()
	}
	// Services that only match via MatchByResource are "interested"
	// rather than run.
	res := param.Resource{Protocol: "keyword", Value: keyword}
	for _, s := range registry.ByResource(all, res) {
		if ran[s.Name] {
			continue
		}
		results = append(results, map[string]interface{}{"service": s.Name, "interested": true})
	}
	resp.ServiceResults = results
}

func (d *Dispatcher) handleGetResults(ctx context.Context, op *Operation, resp *Response) {
	uuids := op.extraStrings("uuids")
	var out []map[string]interface{}
	for _, id := range uuids {
		if d.JobsManager == nil {
			continue
		}
		j, err := d.JobsManager.PollAndRetire(ctx, id)
		if err != nil || j == nil {
			out = append(out, map[string]interface{}{"uuid": id, "error": "not found"})
			continue
		}
		out = append(out, jobSummary(j))
	}
	resp.ServiceResults = out
}

func (d *Dispatcher) serverStatus(ctx context.Context) interface{} {
	if d.JobsManager == nil {
		return []interface{}{}
	}
	jobs, err := d.JobsManager.List(ctx)
	if err != nil {
		return map[string]string{"error": err.Error()}
	}
	out := make([]map[string]interface{}, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, jobSummary(j))
	}
	return out
}

func jobSummary(j *job.ServiceJob) map[string]interface{} {
	return map[string]interface{}{
		"service":      j.ServiceName,
		"job_type":     j.TypeTag,
		"uuid":         j.UUID,
		"status_value": int(j.Status),
		"status":       j.Status.String(),
		"results":      j.Results,
		"errors":       j.Errors,
	}
}

// handleServicesArray runs each requested entry: for each entry with
// run=true, locate exactly one matching service, build a ParameterSet,
// run the service, fan out to paired peers, fire any linked-service
// arcs, and persist the resulting jobs.
func (d *Dispatcher) handleServicesArray(ctx context.Context, req *Request, resp *Response) {
	providers := providerstate.Seed(req.Servers)
	var results []map[string]interface{}

	for _, entry := range req.Services {
		if !entry.Run {
			continue
		}
		svc := registry.ByNameOrAlias(d.Registry.Services(), entry.Name)
		if svc == nil {
			results = append(results, map[string]interface{}{"service": entry.Name, "error": "unknown service"})
			continue
		}

		params, errs := buildParamSet(svc, entry.ParamSet)
		if len(errs) > 0 {
			results = append(results, map[string]interface{}{"service": entry.Name, "errors": errs})
			continue
		}

		ctx, span := obs.StartRunSpan(ctx, svc.Name)
		jobs, err := service.Run(ctx, svc, params, nil, providers, d.SelfURI)
		if err != nil {
			obs.RecordError(ctx, err)
			span.End()
			results = append(results, map[string]interface{}{"service": entry.Name, "error": err.Error()})
			continue
		}
		obs.SetSpanSuccess(ctx)
		span.End()
		obs.ServicesRun.WithLabelValues(svc.Name, string(svc.Synchronicity)).Inc()

		d.fanOutToPeers(ctx, svc, entry.ParamSet, providers, jobs)

		for _, j := range jobs.Jobs() {
			obs.JobsCreated.Inc()
			if j.Status.IsSuccess() {
				d.fireLinkedServices(svc, j)
				obs.JobsSucceeded.Inc()
			} else if j.Status.IsFailure() {
				obs.JobsFailed.Inc()
			}
			if d.JobsManager != nil {
				_ = d.JobsManager.Add(ctx, j)
			}
			results = append(results, jobSummary(j))
		}
	}
	resp.ServiceResults = results
}

func (d *Dispatcher) fanOutToPeers(ctx context.Context, svc *service.Service, rawParams json.RawMessage, providers *providerstate.Table, into *job.Set) {
	if d.Federation == nil {
		return
	}
	var params map[string]interface{}
	_ = json.Unmarshal(rawParams, &params)
	for _, ps := range svc.PairedServices {
		if err := d.Federation.Dispatch(ctx, ps, params, d.SchemaVersion, providers, into); err != nil && d.Log != nil {
			d.Log.Warn("dispatcher: paired service dispatch failed", zap.String("peer", ps.PeerURI), zap.Error(err))
		}
	}
}

func (d *Dispatcher) fireLinkedServices(svc *service.Service, j *job.ServiceJob) {
	if len(svc.LinkedServices) == 0 {
		return
	}
	for _, ls := range svc.LinkedServices {
		if err := linked.Process(ls, j, j.Results, d.Generators); err != nil && d.Log != nil {
			d.Log.Warn("dispatcher: linked service failed", zap.String("target", ls.OutputServiceName), zap.Error(err))
		} else {
			obs.LinkedServicesTriggered.WithLabelValues("ok").Inc()
		}
	}
}

// buildParamSet decodes a request entry's raw param_set against the
// service's declared parameter schema, applying each parameter's
// bounds/options validation. Returns per-parameter errors on rejection
// rather than failing the whole request.
func buildParamSet(svc *service.Service, raw json.RawMessage) (*param.Set, map[string]param.ValidationError) {
	schema, err := svc.Impl.GetParameters(nil)
	if err != nil || schema == nil {
		return param.NewSet(), nil
	}

	var wire struct {
		Params []struct {
			Name         string      `json:"name"`
			CurrentValue interface{} `json:"current_value"`
		} `json:"params"`
	}
	_ = json.Unmarshal(raw, &wire)

	errs := make(map[string]param.ValidationError)
	for _, entry := range wire.Params {
		p := schema.Get(entry.Name)
		if p == nil {
			continue
		}
		if err := p.SetCurrent(entry.CurrentValue); err != nil {
			if verr, ok := err.(*param.ValidationError); ok {
				errs[entry.Name] = *verr
			}
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return schema, nil
}
