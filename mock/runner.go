package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/flanksource/eden-updater/pkg/shell"
)

// RunnerFunc computes the result of a faked command
type RunnerFunc func(args []string) (shell.Result, error)

// Runner is a scripted shell.Runner. Commands are matched by the longest registered
// prefix of "name arg1 arg2 ..."; unmatched commands fail with exit code 127.
type Runner struct {
	mu       sync.Mutex
	handlers map[string]RunnerFunc
	calls    []string
	started  []string
	startErr error
}

func NewRunner() *Runner {
	return &Runner{handlers: make(map[string]RunnerFunc)}
}

// On makes commands starting with prefix succeed with stdout
func (r *Runner) On(prefix, stdout string) *Runner {
	return r.OnFunc(prefix, func([]string) (shell.Result, error) {
		return shell.Result{Stdout: stdout}, nil
	})
}

// OnError makes commands starting with prefix exit with code and stderr
func (r *Runner) OnError(prefix string, code int, stderr string) *Runner {
	name := strings.SplitN(prefix, " ", 2)[0]
	return r.OnFunc(prefix, func([]string) (shell.Result, error) {
		return shell.Result{Stderr: stderr, ExitCode: code}, &shell.ExitError{Cmd: name, Code: code, Stderr: stderr}
	})
}

// OnFunc registers a handler for commands starting with prefix
func (r *Runner) OnFunc(prefix string, fn RunnerFunc) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[prefix] = fn
	return r
}

// WithStartError makes every detached Start fail
func (r *Runner) WithStartError(err error) *Runner {
	r.startErr = err
	return r
}

func (r *Runner) Run(ctx context.Context, name string, args ...string) (shell.Result, error) {
	line := strings.Join(append([]string{name}, args...), " ")
	r.mu.Lock()
	r.calls = append(r.calls, line)
	var (
		best    string
		handler RunnerFunc
	)
	for prefix, fn := range r.handlers {
		if strings.HasPrefix(line, prefix) && len(prefix) > len(best) {
			best, handler = prefix, fn
		}
	}
	r.mu.Unlock()

	if handler == nil {
		return shell.Result{ExitCode: 127}, &shell.ExitError{Cmd: name, Code: 127, Stderr: fmt.Sprintf("%s: command not found", name)}
	}
	return handler(args)
}

func (r *Runner) Start(name string, args ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	line := strings.Join(append([]string{name}, args...), " ")
	if r.startErr != nil {
		return r.startErr
	}
	r.started = append(r.started, line)
	return nil
}

// Calls returns every command line passed to Run
func (r *Runner) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// CallsTo counts Run calls starting with prefix
func (r *Runner) CallsTo(prefix string) int {
	n := 0
	for _, c := range r.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// Started returns every command line passed to Start
func (r *Runner) Started() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.started...)
}
