// Copyright 2025 James Ross

// Package federation implements paired-service dispatch:
// an outbound call to a peer Grassroots server, merged into the local
// job set under the providers-state table's cycle protection.
//
// Grounded on an outbound-webhook delivery client shape: an
// idle-conn-tuned http.Client, a golang.org/x/time/rate limiter per
// destination, and breaker-wrapped resilience, repurposed here for
// server-to-server calls instead of event-subscriber callbacks.
package federation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/TGAC/grassroots-core/internal/breaker"
	"github.com/TGAC/grassroots-core/internal/config"
	"github.com/TGAC/grassroots-core/internal/job"
	"github.com/TGAC/grassroots-core/internal/obs"
	"github.com/TGAC/grassroots-core/internal/providerstate"
	"github.com/TGAC/grassroots-core/internal/schema"
	"github.com/TGAC/grassroots-core/internal/service"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RunRequest is the per-service entry of an outbound request envelope.
type RunRequest struct {
	Name     string                 `json:"name"`
	Run      bool                   `json:"run"`
	ParamSet map[string]interface{} `json:"param_set"`
}

// ServerSeed mirrors the request's "servers" providers-state seed. A
// blank ServiceName carries forward an already-wildcarded entry rather
// than losing it at this hop.
type ServerSeed struct {
	ServerURI   string `json:"server_uri"`
	ServiceName string `json:"service_name,omitempty"`
}

// Envelope is the outbound request envelope this client builds for a
// single paired-service dispatch.
type Envelope struct {
	Header struct {
		Schema schema.Version `json:"schema"`
	} `json:"header"`
	Operations string       `json:"operations"`
	Services   []RunRequest `json:"services"`
	Servers    []ServerSeed `json:"servers"`
}

// ServiceResult is one entry of a peer's service_results response.
type ServiceResult struct {
	Service     string          `json:"service"`
	StatusValue int             `json:"status_value"`
	UUID        string          `json:"uuid"`
	Results     json.RawMessage `json:"results,omitempty"`
	Errors      json.RawMessage `json:"errors,omitempty"`
}

// Response is the subset of the peer's response envelope federation cares about.
type Response struct {
	ServiceResults []ServiceResult `json:"service_results"`
}

// Client dispatches paired-service requests to peers.
type Client struct {
	http *http.Client
	cfg  config.Federation
	log  *zap.Logger

	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	breakers  map[string]*breaker.CircuitBreaker
}

// NewClient constructs a federation Client with connection-pool tuning
// suited to a modest number of long-lived peer connections.
func NewClient(cfg config.Federation, log *zap.Logger) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		http:     &http.Client{Transport: transport, Timeout: cfg.RequestTimeout},
		cfg:      cfg,
		log:      log,
		limiters: make(map[string]*rate.Limiter),
		breakers: make(map[string]*breaker.CircuitBreaker),
	}
}

func (c *Client) limiterFor(peerURI string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[peerURI]
	if !ok {
		l = rate.NewLimiter(rate.Limit(c.cfg.RateLimitPerSecond), c.cfg.RateLimitBurst)
		c.limiters[peerURI] = l
	}
	return l
}

func (c *Client) breakerFor(peerURI string) *breaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.breakers[peerURI]
	if !ok {
		b = breaker.New(c.cfg.CircuitBreaker.Window, c.cfg.CircuitBreaker.CooldownPeriod, c.cfg.CircuitBreaker.FailureThreshold, c.cfg.CircuitBreaker.MinSamples)
		c.breakers[peerURI] = b
	}
	return b
}

// Dispatch sends a paired-service request to one peer: it skips peers
// already visited in the providers-state table, otherwise POSTs the
// run request and materialises the response into the local job set.
func (c *Client) Dispatch(ctx context.Context, ps *service.PairedService, params map[string]interface{}, schemaVersion schema.Version, providers *providerstate.Table, into *job.Set) error {
	if providers.Contains(ps.PeerURI, ps.PeerName) {
		obs.FederationCyclesAvoided.Inc()
		return nil
	}

	cb := c.breakerFor(ps.PeerURI)
	if !cb.Allow() {
		obs.FederationDispatches.WithLabelValues(ps.PeerURI, "circuit_open").Inc()
		return fmt.Errorf("federation: circuit open for peer %s", ps.PeerURI)
	}

	if err := c.limiterFor(ps.PeerURI).Wait(ctx); err != nil {
		return fmt.Errorf("federation: rate limit wait: %w", err)
	}

	ctx, span := obs.StartFederationSpan(ctx, ps.PeerURI, ps.PeerName)
	defer span.End()

	env := Envelope{Operations: "RUN"}
	env.Header.Schema = schemaVersion
	env.Services = []RunRequest{{Name: ps.PeerName, Run: true, ParamSet: params}}
	for _, p := range providers.Pairs() {
		env.Servers = append(env.Servers, ServerSeed{ServerURI: p.ServerURI, ServiceName: p.ServiceName})
	}

	resp, err := c.post(ctx, ps.PeerURI, env)
	// Mark visited before reading the response, regardless of outcome.
	providers.MarkVisited(ps.PeerURI, ps.PeerName)

	if err != nil {
		cb.Record(false)
		obs.FederationDispatches.WithLabelValues(ps.PeerURI, "error").Inc()
		obs.RecordError(ctx, err)
		if c.log != nil {
			c.log.Warn("federation: remote call error", zap.String("peer", ps.PeerURI), zap.Error(err))
		}
		// Remote call error: logged, not fatal.
		return nil
	}
	cb.Record(true)
	obs.FederationDispatches.WithLabelValues(ps.PeerURI, "ok").Inc()
	obs.SetSpanSuccess(ctx)

	for _, result := range resp.ServiceResults {
		if result.Service != ps.PeerName {
			continue
		}
		into.Add(materialise(ps, result))
	}
	return nil
}

func materialise(ps *service.PairedService, result ServiceResult) *job.ServiceJob {
	status := job.Status(result.StatusValue)
	remote := &job.RemoteServiceJob{
		ServiceJob: job.ServiceJob{
			UUID:        result.UUID,
			ServiceName: ps.LocalServiceName,
			Status:      status,
		},
		RemoteURI:         ps.PeerURI,
		RemoteServiceName: ps.PeerName,
		RemoteJobID:       result.UUID,
	}
	switch {
	case status.IsSuccess():
		if len(result.Results) > 0 {
			var v interface{}
			_ = json.Unmarshal(result.Results, &v)
			remote.Results = v
		}
	case status.IsFailure():
		remote.RecordParamError(job.RuntimeErrorsKey, "", fmt.Sprintf("remote job %s failed with status %s", result.UUID, status))
	}
	return &remote.ServiceJob
}

func (c *Client) post(ctx context.Context, uri string, env Envelope) (*Response, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("federation: marshal envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("federation: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range obs.InjectTraceContext(ctx) {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("federation: post to %s: %w", uri, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("federation: peer %s returned retryable status %d", uri, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("federation: peer %s returned status %d", uri, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("federation: read response: %w", err)
	}
	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("federation: decode response from %s: %w", uri, err)
	}
	return &out, nil
}
