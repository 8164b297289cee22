package rangepart

import (
	"context"
	"math"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-spark-range/internal/common"
	"mini-spark-range/internal/expr"
)

func TestValueComparator_NaNIsLargest(t *testing.T) {
	mem := newMem(t)
	b := array.NewFloat64Builder(mem)
	defer b.Release()
	b.AppendValues([]float64{math.NaN(), 1, math.Inf(-1), math.Inf(1), math.NaN()}, nil)
	col := b.NewFloat64Array()
	defer col.Release()

	c, err := newValueComparator(col, col)
	require.NoError(t, err)

	assert.Positive(t, c(0, 3), "NaN > +Inf")
	assert.Positive(t, c(0, 1), "NaN > 1")
	assert.Negative(t, c(2, 0), "-Inf < NaN")
	assert.Zero(t, c(0, 4), "NaN == NaN")
	assert.Negative(t, c(1, 3))

	b32 := array.NewFloat32Builder(mem)
	defer b32.Release()
	b32.AppendValues([]float32{float32(math.NaN()), float32(math.Inf(1))}, nil)
	col32 := b32.NewFloat32Array()
	defer col32.Release()

	c32, err := newValueComparator(col32, col32)
	require.NoError(t, err)
	assert.Positive(t, c32(0, 1))
}

func TestPartition_NaNGoesToLastPartition(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "x", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	}, nil)
	mem := newMem(t)
	keys := []common.SortKey{common.Asc(expr.Col("x"))}
	p := newPartitioner(t, mem, schema, keys, `[{"x": 5.0}]`)

	rb := array.NewRecordBuilder(mem, schema)
	defer rb.Release()
	rb.Field(0).(*array.Int64Builder).AppendValues([]int64{0, 1, 2, 3}, nil)
	rb.Field(1).(*array.Float64Builder).AppendValues([]float64{math.NaN(), 7, 1, math.Inf(1)}, nil)
	batch := rb.NewRecord()
	defer batch.Release()

	parts, err := p.Partition(context.Background(), batch)
	require.NoError(t, err)
	defer ReleaseBatches(parts)
	assert.Equal(t, map[int][]int64{0: {2}, 1: {1, 3, 0}}, idsByPartition(t, parts))

	// Descendente: NaN primero
	desc := newPartitioner(t, mem, schema, []common.SortKey{common.Desc(expr.Col("x"))}, `[{"x": 5.0}]`)
	dparts, err := desc.Partition(context.Background(), batch)
	require.NoError(t, err)
	defer ReleaseBatches(dparts)
	assert.Equal(t, map[int][]int64{0: {0, 3, 1}, 1: {2}}, idsByPartition(t, dparts))
}
