package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fxsml/goaggregate/convert"
	"github.com/fxsml/goaggregate/expression"
	"github.com/fxsml/goaggregate/internal/timeout"
	"github.com/fxsml/goaggregate/message"
)

const (
	lifecycleNew int32 = iota
	lifecycleRunning
	lifecycleStopped
)

// Aggregator correlates units of work into groups and completes each group
// exactly once.
//
// Merges into the same group are serialized by a per-group lock; merges into
// different groups run in parallel. A group leaves the open state through a
// single compare-and-swap, so when a size, predicate, timeout, interval or
// force completion race, exactly one wins and the others do nothing.
// Completed groups are removed from the table before observers and Output
// run, and the next unit for the same key starts a new group.
type Aggregator struct {
	cfg      Config
	groups   *repository
	closed   *closedKeys
	timeouts *timeout.Map[string, *group]
	stats    stats
	now      func() time.Time

	completionAware CompletionAware
	timeoutAware    TimeoutAware

	lifecycle atomic.Int32
	ctx       context.Context
	outCtx    context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New validates cfg and creates an Aggregator.
// Configuration errors wrap ErrInvalidConfig.
func New(cfg Config) (*Aggregator, error) {
	cfg, err := cfg.parse()
	if err != nil {
		return nil, err
	}
	a := &Aggregator{
		cfg:    cfg,
		groups: newRepository(),
		now:    time.Now,
	}
	if cfg.CloseCorrelationKeyOnCompletion > 0 {
		a.closed = newClosedKeys(cfg.CloseCorrelationKeyOnCompletion)
	}
	if cfg.usesTimeout() {
		a.timeouts = timeout.New(a.onTimeout)
	}
	a.completionAware, _ = cfg.Strategy.(CompletionAware)
	a.timeoutAware, _ = cfg.Strategy.(TimeoutAware)
	return a, nil
}

// Start starts the timeout scheduler and the completion interval.
// Values of ctx are passed to Output for timer driven completions;
// cancellation of ctx does not stop the aggregator.
func (a *Aggregator) Start(ctx context.Context) error {
	if !a.lifecycle.CompareAndSwap(lifecycleNew, lifecycleRunning) {
		return ErrAlreadyStarted
	}
	a.outCtx = context.WithoutCancel(ctx)
	a.ctx, a.cancel = context.WithCancel(a.outCtx)

	if a.timeouts != nil {
		if err := a.timeouts.Start(a.ctx); err != nil {
			return err
		}
	}
	if a.cfg.CompletionInterval > 0 {
		a.wg.Add(1)
		go a.runInterval()
	}
	return nil
}

// Stop stops timers, completes all open groups when CompleteAllOnStop is set,
// and waits for pending timer driven completions.
// Producers must have returned from Process before Stop is called.
func (a *Aggregator) Stop() {
	if !a.lifecycle.CompareAndSwap(lifecycleRunning, lifecycleStopped) {
		return
	}
	a.cancel()
	if a.timeouts != nil {
		a.timeouts.Stop()
	}
	if a.cfg.CompleteAllOnStop {
		if n := a.forceAll(a.outCtx, CompletedByForce, false); n > 0 {
			a.cfg.Logger.Info("Completed open groups on stop",
				"component", "aggregator",
				"groups", n)
		}
	}
	a.wg.Wait()
}

// Process correlates ex and merges it into its group.
// It is safe for concurrent use. When the merge completes the group, observers
// and Output run on the calling goroutine before Process returns.
//
// Failures are returned as *ExchangeError and recorded in ex.Err.
func (a *Aggregator) Process(ctx context.Context, ex *message.Exchange) error {
	if ex == nil {
		return message.ErrNilExchange
	}
	switch a.lifecycle.Load() {
	case lifecycleNew:
		return ErrNotStarted
	case lifecycleStopped:
		return ErrStopped
	}
	ctx = message.ContextWithExchange(ctx, ex)
	a.stats.totalIn.Add(1)

	key, err := a.correlationKey(ex)
	if err != nil {
		if errors.Is(err, ErrInvalidCorrelationKey) && a.cfg.IgnoreInvalidCorrelationKeys {
			a.cfg.Logger.Debug("Invalid correlation key ignored",
				"component", "aggregator",
				"exchange_id", ex.ID)
			return nil
		}
		return a.fail(ex, "", err)
	}
	if a.closed != nil && a.closed.contains(key) {
		return a.fail(ex, key, ErrClosedCorrelationKey)
	}

	if ex.Headers.Bool(HeaderCompleteAllGroups) {
		n := a.ForceCompletionAll(ctx)
		a.cfg.Logger.Debug("Completed all groups on signal",
			"component", "aggregator",
			"exchange_id", ex.ID,
			"groups", n)
		return nil
	}

	d, err := a.timeoutFor(ex)
	if err != nil {
		return a.fail(ex, key, err)
	}

	c, err := a.merge(key, ex, d)
	if err != nil {
		return a.fail(ex, key, err)
	}
	if c != nil {
		a.submit(ctx, c)
	}

	if ex.Headers.Bool(HeaderCompleteAllGroupsInclusive) {
		a.ForceCompletionAll(ctx)
	}
	return nil
}

// ForceCompletion completes the group of key. It reports whether a group was completed.
func (a *Aggregator) ForceCompletion(ctx context.Context, key string) bool {
	return a.force(ctx, key, CompletedByForce, false)
}

// ForceCompletionAll completes all open groups and returns their number.
func (a *Aggregator) ForceCompletionAll(ctx context.Context) int {
	return a.forceAll(ctx, CompletedByForce, false)
}

// ForceDiscard drops the group of key without output. It reports whether a group was dropped.
func (a *Aggregator) ForceDiscard(key string) bool {
	return a.force(context.Background(), key, CompletedByForce, true)
}

// ForceDiscardAll drops all open groups without output and returns their number.
func (a *Aggregator) ForceDiscardAll() int {
	return a.forceAll(context.Background(), CompletedByForce, true)
}

// InFlight returns the number of open groups.
func (a *Aggregator) InFlight() int {
	return a.groups.len()
}

// Keys returns the correlation keys of open groups in no particular order.
func (a *Aggregator) Keys() []string {
	return a.groups.keys()
}

// Statistics returns a snapshot of the counters.
func (a *Aggregator) Statistics() Statistics {
	return a.stats.snapshot()
}

// ResetStatistics zeroes all counters.
func (a *Aggregator) ResetStatistics() {
	a.stats.reset()
}

// ClosedCorrelationKeys returns the number of remembered closed keys.
func (a *Aggregator) ClosedCorrelationKeys() int {
	if a.closed == nil {
		return 0
	}
	return a.closed.len()
}

// ClearClosedCorrelationKeys forgets all closed keys.
func (a *Aggregator) ClearClosedCorrelationKeys() {
	if a.closed != nil {
		a.closed.clear()
	}
}

func (a *Aggregator) correlationKey(ex *message.Exchange) (string, error) {
	if a.cfg.Correlation == nil {
		return DefaultKey, nil
	}
	key, err := expression.String(a.cfg.Correlation, ex)
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", ErrInvalidCorrelationKey
	}
	return key, nil
}

func (a *Aggregator) timeoutFor(ex *message.Exchange) (time.Duration, error) {
	if e := a.cfg.CompletionTimeoutExpression; e != nil {
		v, err := e.Evaluate(ex)
		if err != nil {
			return 0, err
		}
		d, err := durationOf(v)
		if err != nil {
			return 0, err
		}
		if d > 0 {
			return d, nil
		}
	}
	return a.cfg.CompletionTimeout, nil
}

func (a *Aggregator) merge(key string, ex *message.Exchange, d time.Duration) (*Completion, error) {
	completeCurrent := ex.Properties.Bool(PropCompleteCurrentGroup)
	for {
		now := a.now()
		g := a.groups.getOrCreate(key, now)
		g.mu.Lock()
		if !g.open() {
			// finalized between lookup and lock, the table already holds a fresh slot
			g.mu.Unlock()
			continue
		}
		c, err := a.mergeLocked(g, ex, d, completeCurrent, now)
		g.mu.Unlock()
		return c, err
	}
}

func (a *Aggregator) mergeLocked(g *group, ex *message.Exchange, d time.Duration, completeCurrent bool, now time.Time) (*Completion, error) {
	if g.result == nil {
		g.result = a.cfg.Strategy.Prepare(ex)
		delete(g.result.Properties, PropCompleteCurrentGroup)
		delete(g.result.Headers, HeaderCompleteAllGroupsInclusive)
	}

	var eager CompletedBy
	if a.cfg.EagerCheckCompletion {
		var err error
		if eager, err = a.eagerCompletedBy(g, ex, completeCurrent); err != nil {
			if g.size == 0 {
				a.abandonLocked(g)
			}
			return nil, err
		}
	}

	merged, revert, err := a.aggregate(g, ex)
	if err != nil {
		if a.cfg.DiscardOnAggregationFailure {
			a.cfg.Logger.Debug("Discarding group after aggregation failure",
				"component", "aggregator",
				"key", g.key,
				"exchange_id", ex.ID,
				"error", err)
			if g.size == 0 {
				a.abandonLocked(g)
				return nil, nil
			}
			c := a.finishLocked(g, CompletedByStrategy)
			c.discard = true
			return c, nil
		}
		if g.size == 0 {
			a.abandonLocked(g)
		}
		return nil, err
	}
	if !merged {
		if g.size == 0 {
			a.abandonLocked(g)
		}
		return nil, nil
	}

	updated := g.updated
	g.size++
	g.updated = now
	setProperty(g.result, PropAggregatedSize, g.size)

	cause := eager
	if !a.cfg.EagerCheckCompletion {
		cause, err = a.completedBy(g, g.result, g.size, completeCurrent)
		if err != nil {
			// the unit failed, the group keeps only what merged before it
			revert()
			g.size--
			g.updated = updated
			if g.size == 0 {
				a.abandonLocked(g)
			} else {
				setProperty(g.result, PropAggregatedSize, g.size)
			}
			return nil, err
		}
	}
	if cause == "" {
		a.trackLocked(g, d)
		return nil, nil
	}
	return a.finishLocked(g, cause), nil
}

// eagerCompletedBy checks completion against the incoming unit before it is
// merged, with the size the group would have after the merge.
func (a *Aggregator) eagerCompletedBy(g *group, ex *message.Exchange, completeCurrent bool) (CompletedBy, error) {
	prev, had := ex.Properties[PropAggregatedSize]
	setProperty(ex, PropAggregatedSize, g.size+1)
	defer func() {
		if had {
			ex.Properties[PropAggregatedSize] = prev
		} else {
			delete(ex.Properties, PropAggregatedSize)
		}
	}()
	return a.completedBy(g, ex, g.size+1, completeCurrent)
}

// completedBy checks completion of g, evaluating expressions against target
// with size as the received count.
// Order: current group flag, predicate, size expression, size.
func (a *Aggregator) completedBy(g *group, target *message.Exchange, size int, completeCurrent bool) (CompletedBy, error) {
	if completeCurrent || g.result.Properties.Bool(PropCompleteCurrentGroup) {
		delete(g.result.Properties, PropCompleteCurrentGroup)
		return CompletedByStrategy, nil
	}

	if p := a.cfg.CompletionPredicate; p != nil {
		ok, err := p.Matches(target)
		if err != nil {
			return "", err
		}
		if ok {
			return CompletedByPredicate, nil
		}
	}

	total := a.cfg.CompletionSize
	if e := a.cfg.CompletionSizeExpression; e != nil {
		v, err := e.Evaluate(target)
		if err != nil {
			return "", err
		}
		n, err := convert.To[int](v)
		if err != nil {
			return "", fmt.Errorf("completion size: %w", err)
		}
		if n > 0 {
			total = n
		}
	}
	if total > 0 {
		g.total = total
		if size >= total {
			return CompletedBySize, nil
		}
	}
	return "", nil
}

// aggregate merges ex into the result of g and returns a function undoing the merge.
func (a *Aggregator) aggregate(g *group, ex *message.Exchange) (bool, func(), error) {
	if r, ok := a.cfg.Strategy.(Reversible); ok {
		revert, merged, err := r.AggregateReversible(g.result, ex)
		return merged, revert, err
	}
	if a.cfg.CompletionPredicate == nil && a.cfg.CompletionSizeExpression == nil {
		merged, err := a.cfg.Strategy.Aggregate(g.result, ex)
		return merged, func() {}, err
	}
	saved := g.result.Copy()
	merged, err := a.cfg.Strategy.Aggregate(g.result, ex)
	return merged, func() { g.result = saved }, err
}

func (a *Aggregator) trackLocked(g *group, d time.Duration) {
	if a.timeouts == nil || d <= 0 {
		return
	}
	if a.cfg.TimeoutFrom == FromCreation && g.size > 1 {
		return
	}
	g.timeout = d
	g.deadline = a.timeouts.Put(g.key, g, d)
}

// finishLocked moves g out of the open state and removes it from the table.
// It returns nil when another path already finalized g.
func (a *Aggregator) finishLocked(g *group, cause CompletedBy) *Completion {
	if !g.state.CompareAndSwap(stateOpen, stateCompleting) {
		return nil
	}
	if a.timeouts != nil && cause != CompletedByTimeout {
		a.timeouts.RemoveValue(g.key, g)
	}
	a.groups.remove(g.key, g)
	if a.closed != nil {
		a.closed.add(g.key)
	}

	setProperty(g.result, PropAggregatedSize, g.size)
	setProperty(g.result, PropAggregatedCorrelationKey, g.key)
	setProperty(g.result, PropAggregatedCompletedBy, string(cause))
	if cause == CompletedByTimeout {
		setProperty(g.result, PropAggregatedTimeout, g.timeout)
	}
	g.state.Store(stateCompleted)

	return &Completion{
		Key:         g.key,
		Result:      g.result,
		CompletedBy: cause,
		Size:        g.size,
		Total:       g.total,
		Timeout:     g.timeout,
		Created:     g.created,
		Duration:    a.now().Sub(g.created),
	}
}

// abandonLocked drops a group that never merged a unit.
func (a *Aggregator) abandonLocked(g *group) {
	g.state.Store(stateCompleted)
	a.groups.remove(g.key, g)
}

func (a *Aggregator) force(ctx context.Context, key string, cause CompletedBy, discard bool) bool {
	g, ok := a.groups.get(key)
	if !ok {
		return false
	}
	g.mu.Lock()
	if !g.open() || g.size == 0 {
		g.mu.Unlock()
		return false
	}
	c := a.finishLocked(g, cause)
	g.mu.Unlock()
	if c == nil {
		return false
	}
	c.discard = discard
	a.submit(ctx, c)
	return true
}

func (a *Aggregator) forceAll(ctx context.Context, cause CompletedBy, discard bool) int {
	n := 0
	for _, key := range a.groups.keys() {
		if a.force(ctx, key, cause, discard) {
			n++
		}
	}
	return n
}

func (a *Aggregator) onTimeout(_ string, g *group) {
	g.mu.Lock()
	if !g.open() || a.now().Before(g.deadline) {
		g.mu.Unlock()
		return
	}
	c := a.finishLocked(g, CompletedByTimeout)
	g.mu.Unlock()
	if c == nil {
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.submit(a.outCtx, c)
	}()
}

func (a *Aggregator) runInterval() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.cfg.CompletionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.forceAll(a.outCtx, CompletedByInterval, false)
		}
	}
}

// submit notifies observers and emits the result of a finalized group.
func (a *Aggregator) submit(ctx context.Context, c *Completion) {
	if c.discard {
		a.discard(c)
		return
	}

	if c.CompletedBy == CompletedByTimeout {
		if a.timeoutAware != nil {
			a.timeoutAware.Timeout(c.Result, c.Size-1, c.Total, c.Timeout)
		}
		if a.cfg.DiscardOnCompletionTimeout {
			a.discard(c)
			return
		}
	} else if a.completionAware != nil {
		a.completionAware.OnCompletion(c.Result)
	}

	a.stats.complete(c.CompletedBy)
	a.cfg.Logger.Debug("Aggregation completed",
		"component", "aggregator",
		"key", c.Key,
		"completed_by", c.CompletedBy.String(),
		"size", c.Size,
		"duration", c.Duration)

	if a.cfg.Output != nil {
		a.cfg.Output(ctx, c.Result)
	}
}

func (a *Aggregator) discard(c *Completion) {
	a.stats.discarded.Add(1)
	a.cfg.Logger.Debug("Aggregated group discarded",
		"component", "aggregator",
		"key", c.Key,
		"completed_by", c.CompletedBy.String(),
		"size", c.Size)
}

func (a *Aggregator) fail(ex *message.Exchange, key string, err error) error {
	err = &ExchangeError{ExchangeID: ex.ID, Key: key, Err: err}
	ex.Err = err
	return err
}

func setProperty(ex *message.Exchange, key string, v any) {
	if ex.Properties == nil {
		ex.Properties = make(message.Properties)
	}
	ex.Properties[key] = v
}

// durationOf interprets numbers as milliseconds and strings as Go durations.
func durationOf(v any) (time.Duration, error) {
	switch d := v.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return d, nil
	case string:
		if parsed, err := time.ParseDuration(d); err == nil {
			return parsed, nil
		}
	}
	ms, err := convert.To[int64](v)
	if err != nil {
		return 0, fmt.Errorf("completion timeout: %w", err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
