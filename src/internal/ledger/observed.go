package ledger

import (
	"context"
	"time"
)

// Observer receives the duration and outcome of every ledger call
type Observer func(op string, d time.Duration, err error)

type observed struct {
	next    Ledger
	observe Observer
}

// WithObserver wraps l so every call is reported to observe
func WithObserver(l Ledger, observe Observer) Ledger {
	if observe == nil {
		return l
	}
	return &observed{next: l, observe: observe}
}

func (o *observed) RegisterLand(ctx context.Context, req RegisterRequest) (*Receipt, error) {
	start := time.Now()
	r, err := o.next.RegisterLand(ctx, req)
	o.observe("register_land", time.Since(start), err)
	return r, err
}

func (o *observed) TransferToken(ctx context.Context, req TransferRequest) (*Receipt, error) {
	start := time.Now()
	r, err := o.next.TransferToken(ctx, req)
	o.observe("transfer_token", time.Since(start), err)
	return r, err
}

func (o *observed) TransferLog(ctx context.Context, tokenID string) ([]LogEntry, error) {
	start := time.Now()
	entries, err := o.next.TransferLog(ctx, tokenID)
	o.observe("transfer_log", time.Since(start), err)
	return entries, err
}

func (o *observed) Status(ctx context.Context) (*Status, error) {
	start := time.Now()
	s, err := o.next.Status(ctx)
	o.observe("status", time.Since(start), err)
	return s, err
}
