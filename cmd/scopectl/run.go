package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/arin-halvorsen/scoped/reply"
	"github.com/arin-halvorsen/scoped/wire"
)

func runRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	var conn registryFlags
	conn.register(fs)
	var timeout time.Duration
	fs.DurationVar(&timeout, "timeout", 30*time.Second, "how long to wait for the search to finish")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return fmt.Errorf("usage: scopectl run [flags] <scope-id> <query text...>")
	}
	scopeID := fs.Arg(0)
	queryText := strings.Join(fs.Args()[1:], " ")

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	rp, err := conn.dial(ctx)
	cancel()
	if err != nil {
		return err
	}

	sp, err := rp.Find(context.Background(), scopeID)
	if err != nil {
		return fmt.Errorf("find scope %q: %w", scopeID, err)
	}

	recv := &printingReceiver{enc: json.NewEncoder(os.Stdout), done: make(chan struct{})}
	ctrl, err := sp.CreateQuery(context.Background(), queryText, recv)
	if err != nil {
		return fmt.Errorf("create query: %w", err)
	}
	defer ctrl.Destroy()

	select {
	case <-recv.done:
	case <-time.After(timeout):
		return fmt.Errorf("timed out waiting for %q to finish", scopeID)
	}

	if recv.reason == reply.ReasonError {
		return fmt.Errorf("scope %q reported an error: %s", scopeID, recv.message)
	}
	return nil
}

// printingReceiver renders every pushed event as one line of JSON (one
// object per line).
type printingReceiver struct {
	enc     *json.Encoder
	reason  reply.Reason
	message string
	done    chan struct{}
	closed  bool
}

func (p *printingReceiver) emit(kind string, payload any) {
	_ = p.enc.Encode(map[string]any{"type": kind, "data": payload})
}

func (p *printingReceiver) OnCategory(cat reply.Category) { p.emit("category", cat) }
func (p *printingReceiver) OnResult(res reply.Result)     { p.emit("result", res) }
func (p *printingReceiver) OnAnnotation(v wire.Variant)   { p.emit("annotation", v) }
func (p *printingReceiver) OnFilters(fs reply.FilterState) {
	p.emit("filters", map[string]wire.Variant{"filters": fs.Filters, "state": fs.FilterState})
}
func (p *printingReceiver) OnPreviewData(v wire.Variant) { p.emit("preview", v) }
func (p *printingReceiver) OnWidgets(v wire.Variant)     { p.emit("widgets", v) }

func (p *printingReceiver) OnFinish(reason reply.Reason, message string) {
	p.reason = reason
	p.message = message
	p.emit("finish", map[string]string{"reason": reason.String(), "message": message})
	if !p.closed {
		p.closed = true
		close(p.done)
	}
}
