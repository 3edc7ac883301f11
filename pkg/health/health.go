// Package health runs dependency checks on demand.
//
// Every registered check runs concurrently under its own timeout, and the
// outcome of all of them is collected into a Report.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/jx"
	"golang.org/x/sync/errgroup"
)

// CheckFunc is a health check function. It should return nil if the checked
// component is healthy, or an error describing the problem.
type CheckFunc func(ctx context.Context) error

type checkConfig struct {
	name    string
	timeout time.Duration
	check   CheckFunc
}

// run executes the check once under its timeout.
func (c *checkConfig) run(ctx context.Context) Result {
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := c.check(checkCtx)
	return Result{Name: c.name, Err: err, Duration: time.Since(start)}
}

// Result is the outcome of a single check.
type Result struct {
	Name     string
	Err      error
	Duration time.Duration
}

// OK reports whether the check passed.
func (r Result) OK() bool { return r.Err == nil }

// Report holds the results of a Run in registration order.
type Report struct {
	Results []Result
}

// Healthy reports whether every check passed.
func (r Report) Healthy() bool {
	for _, res := range r.Results {
		if !res.OK() {
			return false
		}
	}
	return true
}

// Failures returns a map of check name to error message for failed checks.
func (r Report) Failures() map[string]string {
	failures := make(map[string]string)
	for _, res := range r.Results {
		if !res.OK() {
			failures[res.Name] = res.Err.Error()
		}
	}
	return failures
}

// EncodeJSON renders the report as {"status":"ok"} or
// {"status":"unhealthy","checks":{"name":"error",...}}.
func (r Report) EncodeJSON() []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("status")
	if r.Healthy() {
		e.Str("ok")
		e.ObjEnd()
		return e.Bytes()
	}
	e.Str("unhealthy")
	e.FieldStart("checks")
	e.ObjStart()
	for _, res := range r.Results {
		if !res.OK() {
			e.FieldStart(res.Name)
			e.Str(res.Err.Error())
		}
	}
	e.ObjEnd()
	e.ObjEnd()
	return e.Bytes()
}

// Checker is a set of named checks.
type Checker struct {
	mu     sync.Mutex
	checks []*checkConfig
}

// New creates an empty Checker.
func New() *Checker {
	return &Checker{}
}

// Add registers a check. A non-positive timeout defaults to five seconds.
func (c *Checker) Add(name string, timeout time.Duration, check CheckFunc) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, &checkConfig{name: name, timeout: timeout, check: check})
}

// Run executes all checks concurrently and waits for them to finish. A
// failing check does not cancel the others.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.Lock()
	checks := make([]*checkConfig, len(c.checks))
	copy(checks, c.checks)
	c.mu.Unlock()

	results := make([]Result, len(checks))
	var g errgroup.Group
	for i, chk := range checks {
		g.Go(func() error {
			results[i] = chk.run(ctx)
			return nil
		})
	}
	_ = g.Wait()

	return Report{Results: results}
}
