// Package gcloudtest provides an in-memory gcloud.Runner for tests.
package gcloudtest

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/systemstart/stackctl/pkg/gcloud"
)

// Fake is an in-memory gcloud.Runner. Responses are matched by argument
// prefix; the first match wins. Unmatched calls succeed with empty output.
type Fake struct {
	mu        sync.Mutex
	calls     [][]string
	responses []*Response
}

// Response is one canned answer of a Fake.
type Response struct {
	Prefix []string
	Stdout string
	Stderr string
	// Times limits how often the response is used. Zero means always.
	Times int
	used  int
}

// On registers a response for calls starting with prefix.
func (f *Fake) On(prefix ...string) *Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := &Response{Prefix: prefix}
	f.responses = append(f.responses, r)
	return r
}

// Returns sets the stdout of a successful call.
func (r *Response) Returns(stdout string) *Response {
	r.Stdout = stdout
	return r
}

// Fails makes the call fail with stderr.
func (r *Response) Fails(stderr string) *Response {
	r.Stderr = stderr
	return r
}

// Once limits the response to n uses.
func (r *Response) Once() *Response {
	r.Times = 1
	return r
}

// Run implements gcloud.Runner.
func (f *Fake) Run(ctx context.Context, args ...string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, slices.Clone(args))

	for _, r := range f.responses {
		if r.Times > 0 && r.used >= r.Times {
			continue
		}
		if len(args) < len(r.Prefix) || !slices.Equal(args[:len(r.Prefix)], r.Prefix) {
			continue
		}
		r.used++
		if r.Stderr != "" {
			return nil, &gcloud.CommandError{Args: slices.Clone(args), ExitCode: 1, Stderr: r.Stderr, Err: errExit}
		}
		return []byte(r.Stdout), nil
	}
	return nil, nil
}

// Calls returns every invocation, joined by spaces.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = strings.Join(c, " ")
	}
	return out
}

// CallsTo returns the invocations starting with prefix.
func (f *Fake) CallsTo(prefix ...string) []string {
	want := strings.Join(prefix, " ")
	var out []string
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, want) {
			out = append(out, c)
		}
	}
	return out
}

var errExit = errors.New("exit status 1")

var _ gcloud.Runner = (*Fake)(nil)
