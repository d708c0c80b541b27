package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// Queues. Report work outranks housekeeping when both are pending.
const (
	QueueReports     = "reports"
	QueueMaintenance = "maintenance"
)

// Queues lists the worker queues in display order.
var Queues = []string{QueueReports, QueueMaintenance}

// QueueWeights are the asynq priorities of each queue.
var QueueWeights = map[string]int{
	QueueReports:     3,
	QueueMaintenance: 1,
}

const (
	// TaskLowStockScan publishes the warehouse low-stock gauge.
	TaskLowStockScan = "inventory:low-stock-scan"
	// TaskOrphanSweep reports stock count headers saved without items.
	TaskOrphanSweep = "counts:orphan-sweep"
	// TaskIdempotencyCleanup purges old request keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
	// TaskWeeklyReport builds the weekly delivery summary.
	TaskWeeklyReport = "report:weekly"
)

// TaskNames lists every task the worker handles, in a stable order.
var TaskNames = []string{TaskLowStockScan, TaskOrphanSweep, TaskIdempotencyCleanup, TaskWeeklyReport}

// OrphanSweepPayload sets how old a header must be before it counts as orphaned.
type OrphanSweepPayload struct {
	MinAge time.Duration `json:"min_age"`
}

// IdempotencyCleanupPayload sets the key retention.
type IdempotencyCleanupPayload struct {
	MaxAge time.Duration `json:"max_age"`
}

// WeeklyReportPayload selects the reported week; zero means the last full week.
type WeeklyReportPayload struct {
	WeekOf time.Time `json:"week_of,omitempty"`
}

// QueueFor returns the queue a task type runs on.
func QueueFor(name string) string {
	switch name {
	case TaskLowStockScan, TaskWeeklyReport:
		return QueueReports
	}
	return QueueMaintenance
}

// NewLowStockScanTask constructs a low-stock scan task.
func NewLowStockScanTask() *asynq.Task {
	return asynq.NewTask(TaskLowStockScan, nil, asynq.Queue(QueueFor(TaskLowStockScan)))
}

// NewOrphanSweepTask constructs an orphan sweep task.
func NewOrphanSweepTask(minAge time.Duration) (*asynq.Task, error) {
	return newTask(TaskOrphanSweep, OrphanSweepPayload{MinAge: minAge})
}

// NewIdempotencyCleanupTask constructs a cleanup task.
func NewIdempotencyCleanupTask(maxAge time.Duration) (*asynq.Task, error) {
	return newTask(TaskIdempotencyCleanup, IdempotencyCleanupPayload{MaxAge: maxAge})
}

// NewWeeklyReportTask constructs a weekly report task.
func NewWeeklyReportTask(weekOf time.Time) (*asynq.Task, error) {
	return newTask(TaskWeeklyReport, WeeklyReportPayload{WeekOf: weekOf})
}

// NewTaskByName builds a task with default payload for manual triggers.
func NewTaskByName(name string) (*asynq.Task, error) {
	switch name {
	case TaskLowStockScan:
		return NewLowStockScanTask(), nil
	case TaskOrphanSweep:
		return NewOrphanSweepTask(0)
	case TaskIdempotencyCleanup:
		return NewIdempotencyCleanupTask(0)
	case TaskWeeklyReport:
		return NewWeeklyReportTask(time.Time{})
	}
	return nil, ErrUnknownTask
}

func newTask(name string, payload any) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(name, body, asynq.Queue(QueueFor(name))), nil
}

// decode reads a JSON payload; an empty payload leaves target at its zero value.
func decode(t *asynq.Task, target any) error {
	if len(t.Payload()) == 0 {
		return nil
	}
	if err := json.Unmarshal(t.Payload(), target); err != nil {
		return asynq.SkipRetry
	}
	return nil
}
