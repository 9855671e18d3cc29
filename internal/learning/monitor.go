package learning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/aegis-advisory/guidance-cli/internal/config"
	"github.com/aegis-advisory/guidance-cli/internal/model"
	"github.com/aegis-advisory/guidance-cli/internal/store"
)

// Retrainer is the opaque external retraining action. The monitor only
// hands it the triggering reason; what happens downstream is not its
// concern.
type Retrainer interface {
	TriggerRetrain(ctx context.Context, reason string) error
}

// WebhookRetrainer posts the trigger reason to an HTTP endpoint.
type WebhookRetrainer struct {
	URL    string
	Client *http.Client
}

func (w *WebhookRetrainer) TriggerRetrain(ctx context.Context, reason string) error {
	body, err := json.Marshal(map[string]string{"reason": reason})
	if err != nil {
		return eris.Wrap(err, "learning: marshal retrain payload")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "learning: build retrain request")
	}
	req.Header.Set("Content-Type", "application/json")

	client := w.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return eris.Wrap(err, "learning: post retrain webhook")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return eris.Errorf("learning: retrain webhook returned %d", resp.StatusCode)
	}
	return nil
}

// LogRetrainer only logs the trigger. Used when no webhook is configured.
type LogRetrainer struct{}

func (LogRetrainer) TriggerRetrain(_ context.Context, reason string) error {
	zap.L().Info("learning: retrain triggered", zap.String("reason", reason))
	return nil
}

type monitorState string

const (
	stateIdle       monitorState = "idle"
	stateEvaluating monitorState = "evaluating"
)

// Monitor periodically evaluates recent learning events and decides
// whether the model needs retraining. It reads only durable state, so a
// failed tick is skipped and the next one starts clean.
type Monitor struct {
	store     store.Store
	retrainer Retrainer

	interval      time.Duration
	recentEvents  int
	yieldFloor    float64
	newEventFloor int

	state monitorState
}

func NewMonitor(st store.Store, retrainer Retrainer, cfg config.MonitorConfig) *Monitor {
	m := &Monitor{
		store:         st,
		retrainer:     retrainer,
		interval:      time.Duration(cfg.IntervalMins) * time.Minute,
		recentEvents:  cfg.RecentEvents,
		yieldFloor:    cfg.YieldFloor,
		newEventFloor: cfg.NewEventFloor,
		state:         stateIdle,
	}
	if m.interval <= 0 {
		m.interval = 15 * time.Minute
	}
	if m.recentEvents <= 0 {
		m.recentEvents = 5
	}
	if m.yieldFloor <= 0 {
		m.yieldFloor = 0.80
	}
	if m.newEventFloor <= 0 {
		m.newEventFloor = 3
	}
	return m
}

// Run ticks until the context is cancelled. One failed tick is logged and
// skipped; it never stops the loop.
func (m *Monitor) Run(ctx context.Context) {
	zap.L().Info("learning: monitor started", zap.Duration("interval", m.interval))
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("learning: monitor stopped")
			return
		case <-ticker.C:
			if err := m.Tick(ctx); err != nil {
				zap.L().Warn("learning: monitor tick failed", zap.Error(err))
			}
		}
	}
}

// Tick runs one evaluation pass.
func (m *Monitor) Tick(ctx context.Context) error {
	m.state = stateEvaluating
	defer func() { m.state = stateIdle }()

	events, err := m.store.RecentLearningEvents(ctx, m.recentEvents)
	if err != nil {
		return eris.Wrap(err, "learning: fetch recent events")
	}
	if len(events) == 0 {
		return nil
	}

	reasons := m.evaluate(ctx, events)
	if len(reasons) == 0 {
		return nil
	}

	reason := reasons[0]
	for _, r := range reasons[1:] {
		reason += "; " + r
	}

	if err := m.retrainer.TriggerRetrain(ctx, reason); err != nil {
		return eris.Wrap(err, "learning: trigger retrain")
	}

	audit := &model.RetrainEvent{
		ID:          uuid.NewString(),
		Reasons:     reasons,
		WindowSize:  len(events),
		TriggeredAt: time.Now().UTC(),
	}
	if err := m.store.CreateRetrainEvent(ctx, audit); err != nil {
		zap.L().Warn("learning: failed to write retrain audit", zap.Error(err))
	}

	zap.L().Info("learning: retrain condition met",
		zap.Strings("reasons", reasons),
		zap.Int("window", len(events)),
	)
	return nil
}

// evaluate returns the triggering condition strings, verbatim as they
// will be audited. Any one condition suffices.
func (m *Monitor) evaluate(ctx context.Context, events []model.LearningEvent) []string {
	var reasons []string

	if y, ok := yield(events); ok && y < m.yieldFloor {
		reasons = append(reasons, fmt.Sprintf("yield=%.1f%%<%.1f%%", y*100, m.yieldFloor*100))
	}

	// Events come newest first; a falling aggregate confidence across the
	// window counts as a negative delta.
	if len(events) >= 2 {
		delta := events[0].AggregateConfidence - events[len(events)-1].AggregateConfidence
		if delta < 0 {
			reasons = append(reasons, fmt.Sprintf("delta=%.3f<0", delta))
		}
	}

	since := time.Time{}
	last, err := m.store.LastRetrainEvent(ctx)
	if err != nil {
		zap.L().Warn("learning: failed to read last retrain event", zap.Error(err))
	} else if last != nil {
		since = last.TriggeredAt
	}
	newEvents, err := m.store.CountLearningEventsSince(ctx, since)
	if err != nil {
		zap.L().Warn("learning: failed to count new events", zap.Error(err))
	} else if newEvents >= m.newEventFloor {
		reasons = append(reasons, fmt.Sprintf("new_events=%d>=%d", newEvents, m.newEventFloor))
	}

	return reasons
}

// yield is the accepted fraction across the window's records. Windows
// with no records carry no signal.
func yield(events []model.LearningEvent) (float64, bool) {
	accepted, total := 0, 0
	for _, ev := range events {
		accepted += ev.AcceptedCount
		total += ev.RecordCount
	}
	if total == 0 {
		return 0, false
	}
	return float64(accepted) / float64(total), true
}
