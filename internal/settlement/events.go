package settlement

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/sportsettle/internal/domain"
)

// Channel and stream names for settlement events.
const (
	ChannelSettlements = "settlements"
	StreamSettlements  = "settlements:stream"
)

// Event types.
const (
	EventMarketSettled = "market.settled"
	EventItemCompleted = "item.completed"
	EventItemFailed    = "item.failed"
	EventQueueSwept    = "queue.swept"
)

// Event is the JSON payload published for every settlement milestone.
type Event struct {
	Type         string    `json:"type"`
	QueueID      string    `json:"queue_id,omitempty"`
	GameID       string    `json:"game_id,omitempty"`
	MarketID     string    `json:"market_id,omitempty"`
	Status       string    `json:"status,omitempty"`
	Outcome      string    `json:"outcome,omitempty"`
	TotalPayouts string    `json:"total_payouts,omitempty"`
	PayoutCount  int       `json:"payout_count,omitempty"`
	Result       *Result   `json:"result,omitempty"`
	Error        string    `json:"error,omitempty"`
	At           time.Time `json:"at"`
}

// publish fans an event out on the pub/sub channel and appends it to the
// durable stream. Delivery failures are logged and never fail settlement.
func (o *Orchestrator) publish(ctx context.Context, ev Event, log *slog.Logger) {
	publishEvent(ctx, o.bus, ev, log)
}

func publishEvent(ctx context.Context, bus domain.EventBus, ev Event, log *slog.Logger) {
	if bus == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		log.WarnContext(ctx, "marshal settlement event", slog.String("error", err.Error()))
		return
	}
	if err := bus.Publish(ctx, ChannelSettlements, payload); err != nil {
		log.WarnContext(ctx, "publish settlement event", slog.String("type", ev.Type), slog.String("error", err.Error()))
	}
	if err := bus.StreamAppend(ctx, StreamSettlements, payload); err != nil {
		log.WarnContext(ctx, "append settlement event", slog.String("type", ev.Type), slog.String("error", err.Error()))
	}
}
