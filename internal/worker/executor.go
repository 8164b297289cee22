package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"golang.org/x/sync/errgroup"

	"mini-spark-range/internal/common"
	"mini-spark-range/internal/rangepart"
)

// ErrMissingBatch indica una tarea sin batch de entrada.
var ErrMissingBatch = errors.New("tarea sin batch")

// Partitioner es lo que el executor necesita del operador.
// *rangepart.BatchPartitioner lo implementa.
type Partitioner interface {
	Partition(ctx context.Context, batch arrow.Record) ([]rangepart.PartitionedBatch, error)
}

// Sink recibe los sub-batches de una tarea y debe liberarlos, incluso cuando
// devuelve error. El executor nunca lo llama de forma concurrente.
type Sink interface {
	Consume(ctx context.Context, task common.Task, parts []rangepart.PartitionedBatch) error
}

// SinkFunc adapta una funcion a Sink.
type SinkFunc func(ctx context.Context, task common.Task, parts []rangepart.PartitionedBatch) error

func (f SinkFunc) Consume(ctx context.Context, task common.Task, parts []rangepart.PartitionedBatch) error {
	return f(ctx, task, parts)
}

// ==========================================
// 1. GESTION DEL POOL DE HILOS (WORKER POOL)
// ==========================================

// ExecutionManager controla la concurrencia en el nodo: como mucho
// maxThreads batches se particionan a la vez contra el mismo operador.
type ExecutionManager struct {
	maxThreads int
	logger     *slog.Logger
	sinkMu     sync.Mutex
}

// NewExecutionManager crea el pool. maxThreads <= 0 usa common.DefaultThreads;
// logger nil usa slog.Default().
func NewExecutionManager(maxThreads int, logger *slog.Logger) *ExecutionManager {
	if maxThreads <= 0 {
		maxThreads = common.DefaultThreads
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecutionManager{maxThreads: maxThreads, logger: logger}
}

func (e *ExecutionManager) MaxThreads() int { return e.maxThreads }

// Run particiona cada tarea y entrega sus sub-batches al sink. Devuelve un
// reporte por tarea, en el mismo orden que tasks. El primer error cancela
// el resto; las tareas que no llegaron a correr quedan como CANCELLED.
func (e *ExecutionManager) Run(ctx context.Context, p Partitioner, tasks []common.Task, sink Sink) ([]common.TaskReport, error) {
	reports := make([]common.TaskReport, len(tasks))
	for i, task := range tasks {
		reports[i] = newReport(task, common.TaskStatusCancelled)
	}

	e.logger.Info("Iniciando ejecucion",
		slog.Int("tasks", len(tasks)),
		slog.Int("threads", e.maxThreads))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxThreads)
	for i := range tasks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			var err error
			reports[i], err = e.runTask(gctx, p, tasks[i], sink)
			return err
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		e.logger.Error("Ejecucion fallida", slog.Any("error", err))
		return reports, err
	}
	e.logger.Info("Ejecucion completada", slog.Int("tasks", len(tasks)))
	return reports, nil
}

// ==========================================
// 2. LOGICA PRINCIPAL DE EJECUCION
// ==========================================

func (e *ExecutionManager) runTask(ctx context.Context, p Partitioner, task common.Task, sink Sink) (common.TaskReport, error) {
	report := newReport(task, common.TaskStatusCancelled)
	if ctx.Err() != nil {
		return report, nil
	}

	start := time.Now()
	log := e.logger.With(slog.String("task_id", task.TaskID), slog.Int("batch", task.BatchIndex))
	log.Debug("Iniciando tarea", slog.Int64("rows", report.InputRows))

	err := e.partitionAndDeliver(ctx, p, task, sink, &report)
	report.DurationMS = time.Since(start).Milliseconds()

	switch {
	case err == nil:
		report.Status = common.TaskStatusSuccess
		log.Debug("Tarea completada",
			slog.Int("partitions", len(report.ShuffleOutput)),
			slog.Int64("duration_ms", report.DurationMS))
		return report, nil
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		// Cancelada por otra tarea o por el llamador; el error original ya se reporto
		report.Status = common.TaskStatusCancelled
		return report, err
	}
	report.Status = common.TaskStatusFailure
	report.ErrorMsg = err.Error()
	log.Error("Tarea fallida", slog.Any("error", err))
	return report, fmt.Errorf("tarea %s (batch %d): %w", task.TaskID, task.BatchIndex, err)
}

func (e *ExecutionManager) partitionAndDeliver(ctx context.Context, p Partitioner, task common.Task, sink Sink, report *common.TaskReport) error {
	if task.Batch == nil {
		return ErrMissingBatch
	}
	parts, err := p.Partition(ctx, task.Batch)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		rangepart.ReleaseBatches(parts)
		return err
	}
	report.ShuffleOutput = shuffleMeta(parts)

	e.sinkMu.Lock()
	defer e.sinkMu.Unlock()
	return sink.Consume(ctx, task, parts)
}

// ==========================================
// 3. HELPERS
// ==========================================

func newReport(task common.Task, status string) common.TaskReport {
	r := common.TaskReport{
		TaskID:    task.TaskID,
		JobID:     task.JobID,
		StageID:   task.StageID,
		Status:    status,
		Timestamp: time.Now().Unix(),
	}
	if task.Batch != nil {
		r.InputRows = task.Batch.NumRows()
	}
	return r
}

// shuffleMeta resume cada sub-batch. Size cuenta los buffers referenciados,
// que se comparten con el batch ordenado del que salen los cortes.
func shuffleMeta(parts []rangepart.PartitionedBatch) []common.ShuffleMeta {
	metas := make([]common.ShuffleMeta, 0, len(parts))
	for _, pb := range parts {
		metas = append(metas, common.ShuffleMeta{
			PartitionKey: pb.Partition,
			Rows:         pb.Record.NumRows(),
			Size:         recordSize(pb.Record),
		})
	}
	return metas
}

func recordSize(rec arrow.Record) int64 {
	var n int64
	for _, col := range rec.Columns() {
		n += dataSize(col.Data())
	}
	return n
}

func dataSize(d arrow.ArrayData) int64 {
	var n int64
	for _, b := range d.Buffers() {
		if b != nil {
			n += int64(b.Len())
		}
	}
	for _, c := range d.Children() {
		n += dataSize(c)
	}
	if dict := d.Dictionary(); dict != nil {
		n += dataSize(dict)
	}
	return n
}

// ==========================================
// 4. SINK EN MEMORIA
// ==========================================

// Output es un sub-batch entregado, con el batch de entrada del que salio.
type Output struct {
	BatchIndex int
	Partition  int
	Record     arrow.Record
}

// MemorySink acumula los sub-batches en memoria. Release los libera.
type MemorySink struct {
	mu      sync.Mutex
	outputs []Output
}

var _ Sink = (*MemorySink)(nil)

func (s *MemorySink) Consume(_ context.Context, task common.Task, parts []rangepart.PartitionedBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pb := range parts {
		s.outputs = append(s.outputs, Output{BatchIndex: task.BatchIndex, Partition: pb.Partition, Record: pb.Record})
	}
	return nil
}

// Outputs devuelve lo recibido ordenado por (batch, particion). Los records
// siguen perteneciendo al sink.
func (s *MemorySink) Outputs() []Output {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]Output(nil), s.outputs...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].BatchIndex != out[j].BatchIndex {
			return out[i].BatchIndex < out[j].BatchIndex
		}
		return out[i].Partition < out[j].Partition
	})
	return out
}

// RowsByPartition suma filas por particion sobre todos los batches.
func (s *MemorySink) RowsByPartition() map[int]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make(map[int]int64)
	for _, o := range s.outputs {
		rows[o.Partition] += o.Record.NumRows()
	}
	return rows
}

func (s *MemorySink) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.outputs {
		o.Record.Release()
	}
	s.outputs = nil
}
