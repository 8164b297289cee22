package dag_test

import (
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-spark-range/internal/common"
	"mini-spark-range/internal/dag"
	"mini-spark-range/internal/expr"
	"mini-spark-range/internal/rangepart"
)

// setupJob crea una estructura JobRequest simple para usar en las pruebas
func setupJob(partitions int, opType string) *common.JobRequest {
	return &common.JobRequest{
		JobID: "job-" + uuid.New().String(),
		Name:  "split-test",
		Graph: []common.OperationNode{
			{
				ID:            "range-stage-1",
				Type:          opType,
				Keys:          []common.SortKey{common.Asc(expr.Col("k"))},
				NumPartitions: partitions,
			},
		},
	}
}

func makeBatches(t *testing.T, n int) []arrow.Record {
	t.Helper()
	mem := memory.NewCheckedAllocator(memory.DefaultAllocator)
	schema := arrow.NewSchema([]arrow.Field{{Name: "k", Type: arrow.PrimitiveTypes.Int64}}, nil)
	out := make([]arrow.Record, n)
	for i := range out {
		rec, _, err := array.RecordFromJSON(mem, schema, strings.NewReader(`[{"k": 1}, {"k": 2}]`))
		require.NoError(t, err)
		out[i] = rec
	}
	t.Cleanup(func() {
		for _, r := range out {
			r.Release()
		}
		mem.AssertSize(t, 0)
	})
	return out
}

func TestGenerateBatchTasks(t *testing.T) {
	// Estructura de la tabla de pruebas
	tests := []struct {
		name          string
		partitions    int
		opType        string
		batches       int
		expectError   bool
		expectedCount int
	}{
		{name: "Tres batches", partitions: 4, opType: common.OpTypeRangePartition, batches: 3, expectedCount: 3},
		{name: "Una particion", partitions: 1, opType: common.OpTypeRangePartition, batches: 2, expectedCount: 2},
		{name: "Sin batches", partitions: 4, opType: common.OpTypeRangePartition, batches: 0, expectedCount: 0},
		{name: "Cero Particiones (Error)", partitions: 0, opType: common.OpTypeRangePartition, batches: 1, expectError: true},
		{name: "Tipo no Soportado (Error)", partitions: 2, opType: "HASH_PARTITION", batches: 1, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := setupJob(tt.partitions, tt.opType)
			node := job.Graph[0]
			batches := makeBatches(t, tt.batches)

			tasks, err := dag.GenerateBatchTasks(job, node, batches)
			if tt.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, tasks, tt.expectedCount)

			taskIDs := make(map[string]bool)
			for i, task := range tasks {
				assert.False(t, taskIDs[task.TaskID], "TaskID duplicado: %s", task.TaskID)
				taskIDs[task.TaskID] = true
				assert.Equal(t, job.JobID, task.JobID)
				assert.Equal(t, node.ID, task.StageID)
				assert.Equal(t, i, task.BatchIndex)
				assert.Same(t, batches[i], task.Batch)
			}
		})
	}
}

func TestGenerateBatchTasks_ZeroPartitionsIsInvalidBoundaries(t *testing.T) {
	job := setupJob(0, common.OpTypeRangePartition)
	_, err := dag.GenerateBatchTasks(job, job.Graph[0], nil)
	assert.ErrorIs(t, err, rangepart.ErrInvalidBoundaries)
}

func TestParseJob(t *testing.T) {
	in := `{
		"name": "split-ventas",
		"graph": [
			{"id": "scan", "type": "SCAN"},
			{"id": "split", "type": "RANGE_PARTITION", "keys": ["price:desc", "lower(name)"], "partitions": 3}
		]
	}`
	job, err := dag.ParseJob(strings.NewReader(in))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(job.JobID, "job-"))

	stages := dag.RangeStages(job)
	require.Len(t, stages, 1)
	assert.Equal(t, "split", stages[0].ID)
	assert.Equal(t, 3, stages[0].NumPartitions)
	assert.Equal(t, "price desc nulls_last", stages[0].Keys[0].String())
	assert.Equal(t, "lower(name) asc nulls_first", stages[0].Keys[1].String())

	_, err = dag.ParseJob(strings.NewReader(`{"graph": [{"id": "s", "type": "RANGE_PARTITION", "keys": ["a"], "partitions": 0}]}`))
	assert.ErrorIs(t, err, rangepart.ErrInvalidBoundaries)

	_, err = dag.ParseJob(strings.NewReader(`{"graph": [{"id": "s", "type": "RANGE_PARTITION", "partitions": 2}]}`))
	assert.Error(t, err)

	_, err = dag.ParseJob(strings.NewReader(`{"graph": [`))
	assert.Error(t, err)
}

func TestNeedsExchange(t *testing.T) {
	a, b := expr.Col("a"), expr.Col("b")
	child := &rangepart.RangePartitioning{Keys: []common.SortKey{common.Asc(a)}, NumPartitions: 8}

	assert.True(t, dag.NeedsExchange(nil, rangepart.UnspecifiedDistribution{}))
	assert.False(t, dag.NeedsExchange(child, rangepart.OrderedDistribution{Ordering: []common.SortKey{common.Asc(a), common.Asc(b)}}))
	assert.True(t, dag.NeedsExchange(child, rangepart.OrderedDistribution{Ordering: []common.SortKey{common.Desc(a)}}))
	assert.False(t, dag.NeedsExchange(child, rangepart.ClusteredDistribution{Clustering: []expr.Expr{b, a}}))
	assert.True(t, dag.NeedsExchange(child, rangepart.AllTuples{}))
	assert.False(t, dag.NeedsExchange(child, rangepart.UnspecifiedDistribution{}))
}
