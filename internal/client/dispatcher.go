package client

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zhe.chen/manifest-compiler/internal/jobs"
	"github.com/zhe.chen/manifest-compiler/internal/manifest"
	"github.com/zhe.chen/manifest-compiler/pkg/types"
)

// ErrNoRoute is returned for a job type that no configured server handles.
var ErrNoRoute = errors.New("no server routes job type")

// resultPaths are probed, in order, in a tool's JSON text output for the
// location of the produced artifact.
var resultPaths = []string{"url", "uri", "output_path", "outputPath", "path", "result.url", "result.path"}

// JobStatus is the outcome of dispatching one job.
type JobStatus string

const (
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobSkipped   JobStatus = "skipped"
)

// Route names the server and tool that execute a job type.
type Route struct {
	Server string
	Tool   string
}

// JobOutcome records how one job went.
type JobOutcome struct {
	JobID     string           `json:"jobId"`
	Type      manifest.JobType `json:"type"`
	Status    JobStatus        `json:"status"`
	Attempts  int              `json:"attempts"`
	Server    string           `json:"server,omitempty"`
	Tool      string           `json:"tool,omitempty"`
	ResultURL string           `json:"resultUrl,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Report lists job outcomes in input order.
type Report struct {
	Outcomes []JobOutcome `json:"outcomes"`
}

// Count returns how many outcomes have status s.
func (r *Report) Count(s JobStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

// Apply marks the assets produced by generation jobs as ready or failed.
func (r *Report) Apply(m *manifest.ProductionManifest, js []manifest.Job) {
	byID := make(map[string]manifest.Job, len(js))
	for _, j := range js {
		byID[j.ID] = j
	}
	for _, o := range r.Outcomes {
		assetID := byID[o.JobID].ResultAssetID()
		asset, ok := m.Assets[assetID]
		if assetID == "" || !ok {
			continue
		}
		switch o.Status {
		case JobSucceeded:
			asset.Status = manifest.StatusReady
			if o.ResultURL != "" {
				asset.URL = o.ResultURL
			}
		case JobFailed:
			asset.Status = manifest.StatusFailed
		}
		m.Assets[assetID] = asset
	}
}

// Dispatcher executes a job DAG against MCP servers, one dependency wave at
// a time with bounded parallelism inside a wave.
type Dispatcher struct {
	clients     map[string]MCPClient
	routes      map[manifest.JobType]Route
	parallelism int
	jobTimeout  time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *zap.Logger
}

// NewDispatcher builds routes from the server configuration. A job type
// routed by two servers is a configuration error.
func NewDispatcher(clients map[string]MCPClient, servers map[string]types.ServerConfig, cfg types.DispatchConfig, logger *zap.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)

	routes := map[manifest.JobType]Route{}
	for _, name := range names {
		for jobType, tool := range servers[name].Routes {
			t := manifest.JobType(jobType)
			if prev, dup := routes[t]; dup {
				return nil, fmt.Errorf("job type %s routed by both %s and %s", jobType, prev.Server, name)
			}
			if _, ok := clients[name]; !ok {
				return nil, fmt.Errorf("server %s routes %s but has no client", name, jobType)
			}
			routes[t] = Route{Server: name, Tool: tool}
		}
	}

	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = types.DefaultParallelism
	}
	return &Dispatcher{
		clients:     clients,
		routes:      routes,
		parallelism: parallelism,
		jobTimeout:  cfg.JobTimeout,
		sleep:       sleepContext,
		logger:      logger,
	}, nil
}

// Route returns the route for a job type.
func (d *Dispatcher) Route(t manifest.JobType) (Route, error) {
	r, ok := d.routes[t]
	if !ok {
		return Route{}, fmt.Errorf("%w: %s", ErrNoRoute, t)
	}
	return r, nil
}

// CheckRoutes reports every job type in js that has no route.
func (d *Dispatcher) CheckRoutes(js []manifest.Job) error {
	var missing []string
	seen := map[manifest.JobType]bool{}
	for _, j := range js {
		if _, ok := d.routes[j.Type]; !ok && !seen[j.Type] {
			seen[j.Type] = true
			missing = append(missing, string(j.Type))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrNoRoute, missing)
	}
	return nil
}

// Run executes js. Failed jobs do not stop the run; their dependents are
// skipped. Only an invalid graph or a cancelled context returns an error.
func (d *Dispatcher) Run(ctx context.Context, js []manifest.Job) (*Report, error) {
	waves, err := jobs.Waves(js)
	if err != nil {
		return nil, fmt.Errorf("invalid job graph: %w", err)
	}

	var mu sync.Mutex
	outcomes := make(map[string]JobOutcome, len(js))
	succeeded := make(map[string]bool, len(js))

	for i, wave := range waves {
		runnable := map[string]bool{}
		for _, job := range jobs.Ready(wave, succeeded) {
			runnable[job.ID] = true
		}
		d.logger.Info("dispatching wave",
			zap.String("stage", "dispatch"),
			zap.Int("wave", i+1),
			zap.Int("jobs", len(runnable)),
			zap.Int("skipped", len(wave)-len(runnable)))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(d.parallelism)
		for _, job := range wave {
			if !runnable[job.ID] {
				mu.Lock()
				outcomes[job.ID] = JobOutcome{
					JobID:  job.ID,
					Type:   job.Type,
					Status: JobSkipped,
					Error:  fmt.Sprintf("dependency %s did not succeed", unmet(job, succeeded)),
				}
				mu.Unlock()
				continue
			}
			g.Go(func() error {
				outcome := d.execute(gctx, job)
				mu.Lock()
				outcomes[job.ID] = outcome
				mu.Unlock()
				return gctx.Err()
			})
		}
		if err := g.Wait(); err != nil {
			return d.report(js, outcomes), err
		}
		for _, job := range wave {
			if outcomes[job.ID].Status == JobSucceeded {
				succeeded[job.ID] = true
			}
		}
	}
	return d.report(js, outcomes), nil
}

// unmet returns the first dependency of job that has not succeeded.
func unmet(job manifest.Job, succeeded map[string]bool) string {
	for _, dep := range job.DependsOn {
		if !succeeded[dep] {
			return dep
		}
	}
	return ""
}

func (d *Dispatcher) report(js []manifest.Job, outcomes map[string]JobOutcome) *Report {
	r := &Report{Outcomes: make([]JobOutcome, 0, len(js))}
	for _, j := range js {
		if o, ok := outcomes[j.ID]; ok {
			r.Outcomes = append(r.Outcomes, o)
		}
	}
	return r
}

// execute calls the routed tool, retrying per the job's retry policy.
func (d *Dispatcher) execute(ctx context.Context, job manifest.Job) JobOutcome {
	outcome := JobOutcome{JobID: job.ID, Type: job.Type}
	route, err := d.Route(job.Type)
	if err != nil {
		outcome.Status = JobFailed
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Server, outcome.Tool = route.Server, route.Tool

	args := make(map[string]any, len(job.Payload)+1)
	for k, v := range job.Payload {
		args[k] = v
	}
	args["jobId"] = job.ID

	for attempt := 0; attempt <= job.Retry.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := d.sleep(ctx, backoff(job.Retry, attempt)); err != nil {
				break
			}
		}
		outcome.Attempts++

		result, err := d.call(ctx, route, args)
		if err == nil {
			outcome.Status = JobSucceeded
			outcome.Error = ""
			outcome.ResultURL = ResultURL(result)
			d.logger.Info("job succeeded",
				zap.String("stage", "dispatch"),
				zap.String("job", job.ID),
				zap.String("tool", route.Tool),
				zap.Int("attempts", outcome.Attempts))
			return outcome
		}
		outcome.Error = err.Error()
		d.logger.Warn("job attempt failed",
			zap.String("stage", "dispatch"),
			zap.String("job", job.ID),
			zap.Int("attempt", outcome.Attempts),
			zap.Error(err))
	}

	outcome.Status = JobFailed
	return outcome
}

func (d *Dispatcher) call(ctx context.Context, route Route, args map[string]any) (*types.ToolCallResult, error) {
	if d.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.jobTimeout)
		defer cancel()
	}
	return d.clients[route.Server].CallTool(ctx, route.Tool, args)
}

// backoff returns the delay before the given retry attempt (1-based). The
// last configured delay repeats.
func backoff(p manifest.RetryPolicy, attempt int) time.Duration {
	if len(p.BackoffSeconds) == 0 {
		return 0
	}
	i := attempt - 1
	if i >= len(p.BackoffSeconds) {
		i = len(p.BackoffSeconds) - 1
	}
	return time.Duration(p.BackoffSeconds[i]) * time.Second
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ResultURL extracts the artifact location from a tool result: a resource
// block's URI, or a known field of a JSON text block.
func ResultURL(result *types.ToolCallResult) string {
	if result == nil {
		return ""
	}
	for _, block := range result.Content {
		if block.URI != "" {
			return block.URI
		}
		if block.Type != "text" || !gjson.Valid(block.Text) {
			continue
		}
		for _, r := range gjson.GetMany(block.Text, resultPaths...) {
			if r.Type == gjson.String && r.String() != "" {
				return r.String()
			}
		}
	}
	return ""
}
