package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"daqbridge/internal/device"
	"daqbridge/internal/health"
	"daqbridge/internal/logging"
	"daqbridge/internal/table"
)

const tablePollerName = "table-poller"

// tablePoller keeps table editors in step with the device. Each tick asks
// the device which tables changed and reloads only those; a resync reloads
// every table.
type tablePoller struct {
	sender   table.Sender
	editors  map[string]*table.Editor
	interval time.Duration
	logger   *slog.Logger

	trigger chan struct{}

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	resync   bool
	lastErr  error
	lastPoll time.Time
}

func newTablePoller(sender table.Sender, editors []*table.Editor, interval time.Duration, logger *slog.Logger) *tablePoller {
	if interval <= 0 {
		interval = time.Second
	}
	byName := make(map[string]*table.Editor, len(editors))
	for _, e := range editors {
		byName[e.Name()] = e
	}
	return &tablePoller{
		sender:   sender,
		editors:  byName,
		interval: interval,
		logger:   logging.NewComponentLogger(logger, tablePollerName),
		trigger:  make(chan struct{}, 1),
		resync:   true,
	}
}

// Start launches the poll loop. It is a no-op without tables.
func (p *tablePoller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running || len(p.editors) == 0 {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	go p.loop(loopCtx, p.done)
	p.logger.Info("table poller started",
		logging.String(logging.FieldEventType, "table_poller_started"),
		logging.Int("tables", len(p.editors)),
		logging.Duration("interval", p.interval),
	)
}

// Stop ends the poll loop and waits for it.
func (p *tablePoller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel, done := p.cancel, p.done
	p.running = false
	p.mu.Unlock()

	cancel()
	<-done
	p.logger.Info("table poller stopped", logging.String(logging.FieldEventType, "table_poller_stopped"))
}

// Trigger requests an immediate full reload, e.g. after the device link
// came back.
func (p *tablePoller) Trigger() {
	p.mu.Lock()
	p.resync = true
	p.mu.Unlock()
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

func (p *tablePoller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-p.trigger:
		}
		p.poll(ctx)
	}
}

func (p *tablePoller) poll(ctx context.Context) {
	err := p.PollOnce(ctx)
	p.mu.Lock()
	prev := p.lastErr
	p.lastErr = err
	p.lastPoll = time.Now()
	if err != nil {
		// Reload everything once the device answers again.
		p.resync = true
	}
	p.mu.Unlock()

	switch {
	case err != nil && ctx.Err() == nil && prev == nil:
		logging.WarnWithContext(p.logger, "table poll failed", "table_poll_failed",
			logging.String(logging.FieldErrorHint, "check the device control connection"),
			logging.String(logging.FieldImpact, "table attributes may be stale"),
			logging.Error(err),
		)
	case err == nil && prev != nil:
		p.logger.Info("table poll recovered", logging.String(logging.FieldEventType, "table_poll_recovered"))
	}
}

// PollOnce runs one poll. After a resync request every table is reloaded;
// otherwise only tables the device reports as changed. Tables reported in
// error are never reloaded, so they keep the error until the device reports
// new contents.
func (p *tablePoller) PollOnce(ctx context.Context) error {
	lines, err := p.sender.Send(ctx, device.GetChanges{Group: "TABLE"})
	if err != nil {
		return fmt.Errorf("poll table changes: %w", err)
	}
	changed, inError := device.ParseChanges(lines)

	p.mu.Lock()
	resync := p.resync
	p.resync = false
	p.mu.Unlock()

	flagged := make(map[string]bool, len(inError))
	for _, name := range inError {
		flagged[name] = true
		if e, ok := p.editors[name]; ok {
			e.MarkInError(nil)
			p.logger.Warn("device reports table in error",
				logging.String(logging.FieldEventType, "table_in_error"),
				logging.String(logging.FieldTable, name),
				logging.String(logging.FieldErrorHint, "rewrite the table from a known good copy"),
			)
		}
	}

	var names []string
	if resync {
		names = p.tableNames()
	} else {
		for name := range changed {
			if _, ok := p.editors[name]; ok {
				names = append(names, name)
			}
		}
		sort.Strings(names)
	}
	for _, name := range names {
		if flagged[name] {
			continue
		}
		p.reload(ctx, p.editors[name])
	}
	return nil
}

func (p *tablePoller) reload(ctx context.Context, e *table.Editor) {
	words, err := p.sender.Send(ctx, device.GetMultiline{Field: e.Name()})
	if err != nil {
		e.MarkInError(err)
		p.logger.Warn("table fetch failed",
			logging.String(logging.FieldEventType, "table_fetch_failed"),
			logging.String(logging.FieldTable, e.Name()),
			logging.String(logging.FieldErrorHint, "check the table name in the catalog"),
			logging.Error(err),
		)
		return
	}
	if err := e.UpdateTable(ctx, words); err != nil {
		p.logger.Warn("device table rejected",
			logging.String(logging.FieldEventType, "table_update_rejected"),
			logging.String(logging.FieldTable, e.Name()),
			logging.String(logging.FieldErrorHint, "check the catalog bit layout matches the device"),
			logging.Error(err),
		)
		return
	}
	p.logger.Debug("table reloaded", logging.String(logging.FieldTable, e.Name()), logging.Int("words", len(words)))
}

func (p *tablePoller) tableNames() []string {
	names := make([]string, 0, len(p.editors))
	for name := range p.editors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HealthCheck reports the outcome of the last poll.
func (p *tablePoller) HealthCheck(context.Context) health.Health {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case len(p.editors) == 0:
		return health.Healthy(tablePollerName)
	case !p.running:
		return health.Unhealthy(tablePollerName, "not running")
	case p.lastErr != nil:
		return health.Unhealthy(tablePollerName, p.lastErr.Error())
	case p.lastPoll.IsZero():
		return health.Unhealthy(tablePollerName, "waiting for first poll")
	}
	return health.Healthy(tablePollerName)
}
