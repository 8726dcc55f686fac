package settlement

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/sportsettle/internal/domain"
)

// DefaultMaxItems bounds a batch when the caller passes no limit.
const DefaultMaxItems = 50

// Processor settles one claimed item.
type Processor interface {
	ProcessSettlement(ctx context.Context, item domain.QueueItem) Result
}

// BatchResult aggregates one ProcessAll run.
type BatchResult struct {
	Processed int      `json:"processed"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Results   []Result `json:"results"`
}

// Driver claims and settles items sequentially. Several drivers may run
// against the same queue because claiming is atomic.
type Driver struct {
	queue        domain.QueueStore
	proc         Processor
	workerID     string
	storeTimeout time.Duration
	logger       *slog.Logger
}

// NewDriver creates a Driver that claims items as workerID.
func NewDriver(queue domain.QueueStore, proc Processor, workerID string, storeTimeout time.Duration, logger *slog.Logger) *Driver {
	if storeTimeout <= 0 {
		storeTimeout = 10 * time.Second
	}
	return &Driver{
		queue:        queue,
		proc:         proc,
		workerID:     workerID,
		storeTimeout: storeTimeout,
		logger:       logger.With(slog.String("component", "settlement_driver"), slog.String("worker_id", workerID)),
	}
}

// ProcessAll settles items until the queue is empty, maxItems items were
// processed, or ctx is done. maxItems <= 0 means DefaultMaxItems. A claim
// error ends the batch like an empty queue; the next run retries.
func (d *Driver) ProcessAll(ctx context.Context, maxItems int) BatchResult {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	out := BatchResult{Results: []Result{}}

	for out.Processed < maxItems {
		if ctx.Err() != nil {
			d.logger.InfoContext(ctx, "batch interrupted", slog.Int("processed", out.Processed))
			break
		}

		item, err := call(ctx, d.storeTimeout, func(ctx context.Context) (*domain.QueueItem, error) {
			return d.queue.ClaimNext(ctx, d.workerID)
		})
		if err != nil {
			d.logger.WarnContext(ctx, "claim next item", slog.String("error", err.Error()))
			break
		}
		if item == nil {
			break
		}

		res := d.proc.ProcessSettlement(ctx, *item)
		out.Processed++
		if res.Success {
			out.Succeeded++
		} else {
			out.Failed++
		}
		out.Results = append(out.Results, res)
	}

	if out.Processed > 0 {
		d.logger.InfoContext(ctx, "settlement batch finished",
			slog.Int("processed", out.Processed),
			slog.Int("succeeded", out.Succeeded),
			slog.Int("failed", out.Failed),
		)
	}
	return out
}
