// Package fanout delivers one rendered notification to every configured
// destination group.
//
// Each destination is an independent attempt: a failure is logged, counted,
// published and recorded, and never stops the remaining deliveries. There is
// no retry and no ordering guarantee.
package fanout

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"hydrobot/internal/eventbus"
	"hydrobot/internal/storage"
	"hydrobot/internal/transport"
	"hydrobot/pkg/logx"
)

const (
	DefaultRatePerSec  = 5
	DefaultSendTimeout = 10 * time.Second
)

// DestinationsFunc returns the destination set as of the call.
type DestinationsFunc func() []string

// Result is returned for observability only.
type Result struct {
	Total  int
	Sent   int
	Failed int
}

// DeliveryEvent is the Data of eventbus.TypeDelivered and TypeDeliveryFailed.
type DeliveryEvent struct {
	ID      string
	Source  string
	GroupID string
	Err     string
	Took    time.Duration
}

type Options struct {
	Destinations DestinationsFunc
	Sender       transport.Sender

	RatePerSec  int
	SendTimeout time.Duration

	Log   logx.Logger
	Bus   eventbus.Bus  // optional
	Store storage.Store // optional
}

// Fanout is safe for concurrent use. Copies made with WithSource share the
// limiter, so all monitors together respect one send rate.
type Fanout struct {
	source string
	dests  DestinationsFunc
	sender transport.Sender

	limits *limits

	log   logx.Logger
	bus   eventbus.Bus
	store storage.Store
}

func New(opts Options) *Fanout {
	rps := opts.RatePerSec
	if rps <= 0 {
		rps = DefaultRatePerSec
	}
	timeout := opts.SendTimeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	lim := &limits{limiter: rate.NewLimiter(rate.Limit(rps), rps)}
	lim.timeout.Store(int64(timeout))
	return &Fanout{
		dests:  opts.Destinations,
		sender: opts.Sender,
		limits: lim,
		log:    log,
		bus:    opts.Bus,
		store:  opts.Store,
	}
}

// limits is shared by every copy of a Fanout.
type limits struct {
	limiter *rate.Limiter
	timeout atomic.Int64 // time.Duration
}

// WithSource returns a Fanout that tags its deliveries with source (the
// monitor name).
func (f *Fanout) WithSource(source string) *Fanout {
	cp := *f
	cp.source = source
	cp.log = f.log.With(logx.String("source", source))
	return &cp
}

// SetLimits applies new notifier settings; zero values keep the defaults.
func (f *Fanout) SetLimits(ratePerSec int, sendTimeout time.Duration) {
	if ratePerSec <= 0 {
		ratePerSec = DefaultRatePerSec
	}
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	f.limits.limiter.SetLimit(rate.Limit(ratePerSec))
	f.limits.limiter.SetBurst(ratePerSec)
	f.limits.timeout.Store(int64(sendTimeout))
}

// SendTimeout is the per-destination timeout currently in effect.
func (f *Fanout) SendTimeout() time.Duration { return time.Duration(f.limits.timeout.Load()) }

// Send delivers text to the destination set read at call time.
func (f *Fanout) Send(ctx context.Context, text string) Result {
	var dests []string
	if f.dests != nil {
		dests = f.dests()
	}
	res := Result{Total: len(dests)}
	if len(dests) == 0 || text == "" {
		return res
	}

	timeout := time.Duration(f.limits.timeout.Load())

	for _, dest := range dests {
		if err := f.deliver(ctx, dest, text, timeout); err != nil {
			res.Failed++
			continue
		}
		res.Sent++
	}
	return res
}

func (f *Fanout) deliver(ctx context.Context, dest, text string, timeout time.Duration) error {
	start := time.Now()
	err := f.limits.limiter.Wait(ctx)
	if err == nil {
		if f.sender == nil {
			err = transport.ErrNotRunning
		} else {
			callCtx, cancel := context.WithTimeout(ctx, timeout)
			err = f.sender.SendGroupMessage(callCtx, dest, text)
			cancel()
		}
	}
	took := time.Since(start)
	f.record(dest, took, err)
	return err
}

func (f *Fanout) record(dest string, took time.Duration, err error) {
	ev := DeliveryEvent{ID: uuid.NewString(), Source: f.source, GroupID: dest, Took: took}
	evType := eventbus.TypeDelivered
	if err != nil {
		ev.Err = err.Error()
		evType = eventbus.TypeDeliveryFailed
		f.log.Warn("delivery failed", logx.Category("SEND-ERROR"), logx.String("group", dest), logx.Err(err))
	} else {
		f.log.Debug("delivered", logx.String("group", dest), logx.Duration("took", took))
	}
	if f.bus != nil {
		f.bus.Publish(eventbus.Event{Type: evType, Data: ev})
	}
	if f.store != nil {
		// Recorded even when ctx is already cancelled.
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if serr := f.store.AppendDelivery(sctx, storage.Delivery{
			ID:      ev.ID,
			Source:  f.source,
			GroupID: dest,
			OK:      err == nil,
			Error:   ev.Err,
			TookMS:  took.Milliseconds(),
		}); serr != nil {
			f.log.Debug("delivery record failed", logx.Err(serr))
		}
	}
}
