package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/spf13/cobra"

	"mini-spark-range/internal/common"
	"mini-spark-range/internal/config"
	"mini-spark-range/internal/dag"
	"mini-spark-range/internal/rangepart"
	"mini-spark-range/internal/worker"
)

// splitOptions son los flags de "split"; los valores cero dejan la configuracion.
type splitOptions struct {
	input       string
	boundaries  string
	keys        []string
	threads     int
	memoryLimit int64
	logLevel    string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "rangepart",
		Short:        "Particionado por rango de batches Arrow",
		SilenceUsage: true,
	}
	root.AddCommand(newSplitCmd())
	return root
}

func newSplitCmd() *cobra.Command {
	opts := &splitOptions{}
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Reparte las filas de un archivo Arrow IPC entre particiones por rango",
		Example: `  rangepart split --input data/inputs/ventas.arrow --boundaries data/inputs/ventas_bounds.json \
    --key price:desc --key "lower(name):asc:nulls_last"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runSplit(cmd.Context(), cfg, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.input, "input", "", "archivo Arrow IPC con los batches de entrada")
	f.StringVar(&opts.boundaries, "boundaries", "", "archivo JSON con las filas limite")
	f.StringArrayVar(&opts.keys, "key", nil, "clave expr[:asc|desc][:nulls_first|nulls_last], repetible")
	f.IntVar(&opts.threads, "threads", 0, "batches particionados en paralelo (executor.threads)")
	f.Int64Var(&opts.memoryLimit, "memory-limit", 0, "bytes por llamada al partitioner (executor.memory_limit_bytes)")
	f.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn o error (log.level)")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("boundaries")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func runSplit(ctx context.Context, cfg *config.Config, opts *splitOptions, out, logOut io.Writer) error {
	if opts.threads > 0 {
		cfg.Executor.Threads = opts.threads
	}
	if opts.memoryLimit > 0 {
		cfg.Executor.MemoryLimitBytes = opts.memoryLimit
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))

	keys := make([]common.SortKey, len(opts.keys))
	for i, s := range opts.keys {
		if keys[i], err = common.ParseSortKey(s); err != nil {
			return err
		}
	}

	mem := memory.NewGoAllocator()
	schema, batches, err := readBatches(mem, opts.input)
	if err != nil {
		return err
	}
	defer func() {
		for _, b := range batches {
			b.Release()
		}
	}()

	p, err := newPartitioner(mem, schema, keys, opts.boundaries, cfg.Executor.MemoryLimitBytes)
	if err != nil {
		return err
	}
	defer p.Release()

	job := &common.JobRequest{JobID: "job-cli", Name: "split"}
	node := common.OperationNode{ID: "split", Type: common.OpTypeRangePartition, Keys: keys, NumPartitions: p.NumPartitions()}
	tasks, err := dag.GenerateBatchTasks(job, node, batches)
	if err != nil {
		return err
	}
	logger.Info("Particionando",
		slog.String("input", opts.input),
		slog.Int("batches", len(batches)),
		slog.Int("partitions", p.NumPartitions()),
		slog.Any("keys", opts.keys))

	sink := &worker.MemorySink{}
	defer sink.Release()
	em := worker.NewExecutionManager(cfg.Executor.Threads, logger)
	if _, err := em.Run(ctx, p, tasks, sink); err != nil {
		return err
	}

	for _, o := range sink.Outputs() {
		fmt.Fprintf(out, "batch=%d partition=%d rows=%d\n", o.BatchIndex, o.Partition, o.Record.NumRows())
	}
	return nil
}

func newPartitioner(mem memory.Allocator, schema *arrow.Schema, keys []common.SortKey, boundsPath string, limit int64) (*rangepart.BatchPartitioner, error) {
	partSchema, err := rangepart.PartitioningSchema(schema, keys)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(boundsPath)
	if err != nil {
		return nil, fmt.Errorf("error leyendo limites: %w", err)
	}
	defer f.Close()

	src, err := rangepart.BoundariesFromJSON(mem, partSchema, f)
	if err != nil {
		return nil, err
	}
	defer src.Release()

	opts := []rangepart.Option{rangepart.WithAllocator(mem)}
	if limit > 0 {
		opts = append(opts, rangepart.WithMemoryLimit(limit))
	}
	return rangepart.NewBatchPartitioner(schema, keys, src, opts...)
}

// readBatches carga todos los batches de un archivo Arrow IPC. Los records
// devueltos pertenecen al llamador.
func readBatches(mem memory.Allocator, path string) (*arrow.Schema, []arrow.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("error leyendo input: %w", err)
	}
	defer f.Close()

	r, err := ipc.NewFileReader(f, ipc.WithAllocator(mem))
	if err != nil {
		return nil, nil, fmt.Errorf("input %s no es Arrow IPC: %w", path, err)
	}
	defer r.Close()

	batches := make([]arrow.Record, 0, r.NumRecords())
	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.Record(i)
		if err != nil {
			for _, b := range batches {
				b.Release()
			}
			return nil, nil, fmt.Errorf("batch %d: %w", i, err)
		}
		rec.Retain()
		batches = append(batches, rec)
	}
	return r.Schema(), batches, nil
}
