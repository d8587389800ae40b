package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/matgreaves/run"

	"github.com/arin-halvorsen/scoped/errs"
	"github.com/arin-halvorsen/scoped/transport"
)

// ProcessState is a scope worker process's lifecycle state.
type ProcessState int

const (
	Stopped ProcessState = iota
	Starting
	Running
	Stopping
)

func (s ProcessState) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	case Stopping:
		return "Stopping"
	default:
		return "Unknown"
	}
}

// scopeProcess is the registry's bookkeeping record for one scope's
// worker process, mutated only while the owning Registry's mutex is
// held (except for the fields read/written by the spawn goroutine
// itself, which are only touched after the record has been handed off
// by Locate).
type scopeProcess struct {
	execArgv        []string
	scopeConfigFile string

	state    ProcessState
	endpoint transport.Endpoint

	cancel  context.CancelFunc
	done    chan struct{}
	readyCh chan transport.Endpoint
}

func newScopeProcess(execArgv []string, scopeConfigFile string) *scopeProcess {
	return &scopeProcess{execArgv: execArgv, scopeConfigFile: scopeConfigFile, state: Stopped}
}

// spawn starts the worker process and waits up to readyTimeout for it to
// announce a listening endpoint via the registry's "ready" RPC. It mirrors
// the teacher's run.Group pairing of a process with a lifecycle
// continuation: the process and the ready wait race, and whichever loses
// (crash vs. timeout) tears the other down.
func (p *scopeProcess) spawn(ctx context.Context, runtimeConfigFile string, readyTimeout time.Duration) (transport.Endpoint, error) {
	p.readyCh = make(chan transport.Endpoint, 1)

	runCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	args := make([]string, 0, len(p.execArgv)+1)
	args = append(args, p.execArgv[1:]...)
	args = append(args, runtimeConfigFile, p.scopeConfigFile)

	proc := run.Process{
		Name: p.execArgv[0],
		Path: p.execArgv[0],
		Args: args,
	}

	group := run.Group{
		"process":   proc,
		"lifecycle": run.Idle,
	}

	go func() {
		defer close(p.done)
		_ = group.Run(runCtx)
	}()

	readyCtx, readyCancel := context.WithTimeout(ctx, readyTimeout)
	defer readyCancel()

	select {
	case ep := <-p.readyCh:
		p.endpoint = ep
		return ep, nil
	case <-readyCtx.Done():
		cancel()
		<-p.done
		return transport.Endpoint{}, fmt.Errorf("registry: spawn %v: %w: ready timeout", p.execArgv, errs.ErrResourceError)
	case <-p.done:
		return transport.Endpoint{}, fmt.Errorf("registry: spawn %v: %w: process exited before announcing ready", p.execArgv, errs.ErrResourceError)
	}
}

// stop asks the worker's run.Group to tear down (cancelling its context,
// which run.Process escalates from a graceful stop to a kill the way
// internal/server/lifecycle.go's group-cancel-then-kill teardown does)
// and waits up to graceTimeout for it to exit.
func (p *scopeProcess) stop(graceTimeout time.Duration) {
	if p.cancel == nil {
		return
	}
	p.cancel()
	select {
	case <-p.done:
	case <-time.After(graceTimeout):
	}
}
