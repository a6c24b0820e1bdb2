package reconcile

import (
	"context"
	"errors"
	"log"
	"time"

	"genzstore/internal/gateway"
	"genzstore/internal/status"
	"genzstore/utils"
)

// Poller actively asks a gateway about a reference until it settles or the
// payment window closes. It is the safety net behind the push path.
type Poller struct {
	rec *Reconciler
	gw  gateway.Gateway
	cb  *utils.CircuitBreaker

	interval time.Duration
}

func NewPoller(rec *Reconciler, gw gateway.Gateway, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{
		rec:      rec,
		gw:       gw,
		cb:       utils.NewCircuitBreaker("poll_" + string(gw.GetProvider())),
		interval: interval,
	}
}

// Poll checks the reference on every tick until it is paid, the deadline
// passes or ctx is cancelled. The final state is returned so callers can
// tell an expired payment from a settled one.
func (p *Poller) Poll(ctx context.Context, orderID, reference string, deadline time.Time) (State, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	last := StateAwaitingPayment
	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()

		case now := <-ticker.C:
			if !deadline.IsZero() && now.After(deadline) {
				return last, nil
			}

			result, err := p.cb.Execute(ctx, func() (interface{}, error) {
				st, tran, err := p.rec.CheckStatus(ctx, p.gw, reference)
				if err != nil {
					return nil, err
				}
				return &checkResult{state: st, tran: tran}, nil
			})
			if err != nil {
				// Open breaker and transient gateway errors both mean
				// "try again next tick".
				if !errors.Is(err, utils.ErrCircuitOpen) {
					log.Printf("poll %s: %v", orderID, err)
				}
				last = StateUnknown
				continue
			}

			cr := result.(*checkResult)
			last = cr.state
			if cr.state != StatePaid {
				continue
			}

			if _, err := p.rec.Reconcile(ctx, orderID, cr.tran); err != nil {
				return StateUnknown, err
			}
			return StatePaid, nil
		}
	}
}

type checkResult struct {
	state State
	tran  *status.Transaction
}
