// Package rangepart implementa el particionado por rango de batches columnares:
// el chequeo de distribucion que usa el planificador y la asignacion de filas
// a particiones contra una tabla de limites precalculada.
package rangepart

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/compute"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/hashicorp/go-multierror"

	"mini-spark-range/internal/common"
	"mini-spark-range/internal/expr"
	"mini-spark-range/internal/storage"
)

// PartitionedBatch es un tramo contiguo del batch ordenado y su particion destino.
// Record pertenece al llamador.
type PartitionedBatch struct {
	Record    arrow.Record
	Partition int
}

// ReleaseBatches libera todos los sub-batches de parts.
func ReleaseBatches(parts []PartitionedBatch) {
	for _, p := range parts {
		if p.Record != nil {
			p.Record.Release()
		}
	}
}

type options struct {
	mem   memory.Allocator
	limit int64
}

type Option func(*options)

// WithAllocator fija el allocator de los intermedios y de los sub-batches.
func WithAllocator(mem memory.Allocator) Option {
	return func(o *options) { o.mem = mem }
}

// WithMemoryLimit limita los bytes que asigna cada llamada a Partition o
// PartitionIDs, incluidos los sub-batches que devuelve. Cada llamada tiene su
// propio contador. Superarlo hace fallar la llamada con ErrResourceExhaustion.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) { o.limit = bytes }
}

// BatchPartitioner asigna las filas de cada batch a su particion de rango.
//
// Todo su estado se fija en la construccion y no cambia despues, asi que
// Partition se puede llamar desde varias goroutines a la vez.
type BatchPartitioner struct {
	keys          []common.SortKey
	bound         []expr.Bound
	schema        *arrow.Schema
	numPartitions int
	bounds        arrow.Record
	boundCols     []arrow.Array
	mem           memory.Allocator
	limit         int64
	released      atomic.Bool
}

// NewBatchPartitioner resuelve las claves contra input, obtiene la tabla de
// limites de src y la valida. El particionador retiene la tabla hasta Release.
func NewBatchPartitioner(input *arrow.Schema, keys []common.SortKey, src BoundarySource, opts ...Option) (*BatchPartitioner, error) {
	o := options{mem: memory.DefaultAllocator}
	for _, opt := range opts {
		opt(&o)
	}
	keys = slices.Clone(keys)
	bound, err := bindKeys(input, keys)
	if err != nil {
		return nil, err
	}
	schema := partitioningSchema(keys, bound)

	n := src.NumPartitions()
	if n < 1 {
		return nil, fmt.Errorf("%w: numPartitions=%d", ErrInvalidBoundaries, n)
	}
	rec, err := src.Boundaries(schema)
	if err != nil {
		return nil, fmt.Errorf("obteniendo limites: %w", err)
	}
	if err := validateBoundaries(keys, schema, rec, n); err != nil {
		rec.Release()
		return nil, err
	}

	return &BatchPartitioner{
		keys:          keys,
		bound:         bound,
		schema:        schema,
		numPartitions: n,
		bounds:        rec,
		boundCols:     rec.Columns(),
		mem:           o.mem,
		limit:         o.limit,
	}, nil
}

func validateBoundaries(keys []common.SortKey, schema *arrow.Schema, rec arrow.Record, n int) error {
	if int(rec.NumCols()) != schema.NumFields() {
		return fmt.Errorf("%w: la tabla de limites tiene %d columnas, se esperaban %d",
			ErrSchemaMismatch, rec.NumCols(), schema.NumFields())
	}
	var errs *multierror.Error
	for i, f := range schema.Fields() {
		if got := rec.Schema().Field(i).Type; !arrow.TypeEqual(got, f.Type) {
			errs = multierror.Append(errs, fmt.Errorf("columna %d (%s): se esperaba %s, hay %s", i, f.Name, f.Type, got))
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: tabla de limites: %w", ErrSchemaMismatch, err)
	}

	if rows := int(rec.NumRows()); rows != n-1 {
		return fmt.Errorf("%w: %d tuplas limite para %d particiones", ErrInvalidBoundaries, rows, n)
	}
	if n == 1 {
		return nil
	}
	cols := rec.Columns()
	rc, err := newRowComparator(keys, cols, cols)
	if err != nil {
		return err
	}
	for j := 1; j < int(rec.NumRows()); j++ {
		if rc.compare(j-1, j) > 0 {
			return fmt.Errorf("%w: la tupla %d es mayor que la %d", ErrInvalidBoundaries, j-1, j)
		}
	}
	return nil
}

func (p *BatchPartitioner) NumPartitions() int { return p.numPartitions }

// Schema es el esquema de particionado (un campo por clave).
func (p *BatchPartitioner) Schema() *arrow.Schema { return p.schema }

func (p *BatchPartitioner) Keys() []common.SortKey { return slices.Clone(p.keys) }

// Partitioning devuelve el nodo que ve el planificador.
func (p *BatchPartitioner) Partitioning() *RangePartitioning {
	return &RangePartitioning{Keys: p.Keys(), NumPartitions: p.numPartitions}
}

// Release suelta la tabla de limites. Es idempotente.
func (p *BatchPartitioner) Release() {
	if p.released.CompareAndSwap(false, true) {
		p.bounds.Release()
	}
}

// Partition ordena batch por la clave compuesta y lo corta en sub-batches
// alineados con las particiones. Las particiones vacias se omiten y los
// indices salen en orden creciente. batch solo se toma prestado.
//
// Una fila igual a una tupla limite cae en la particion inferior.
func (p *BatchPartitioner) Partition(ctx context.Context, batch arrow.Record) (out []PartitionedBatch, err error) {
	var sc scope
	defer sc.release()
	defer func() {
		if r := recover(); r != nil {
			err = resourceError(r)
		}
		if err != nil {
			err = asResourceError(err)
			ReleaseBatches(out)
			out = nil
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.checkSchema(batch.Schema()); err != nil {
		return nil, err
	}
	n := batch.NumRows()
	if n == 0 {
		return nil, nil
	}
	if p.numPartitions == 1 {
		batch.Retain()
		return []PartitionedBatch{{Record: batch, Partition: 0}}, nil
	}

	mem := p.callAllocator()
	perm, splits, err := p.locate(ctx, &sc, mem, batch)
	if err != nil {
		return nil, err
	}
	sorted, err := p.gather(ctx, &sc, mem, batch, perm)
	if err != nil {
		return nil, err
	}

	for i := 0; i < p.numPartitions; i++ {
		lo, hi := splits[i], splits[i+1]
		if hi == lo {
			continue
		}
		out = append(out, PartitionedBatch{Record: sorted.NewSlice(int64(lo), int64(hi)), Partition: i})
	}
	return out, nil
}

// PartitionIDs devuelve, en el orden de entrada, la particion de cada fila
// (Int32). Coincide fila a fila con Partition.
func (p *BatchPartitioner) PartitionIDs(ctx context.Context, batch arrow.Record) (ids arrow.Array, err error) {
	var sc scope
	defer sc.release()
	defer func() {
		if r := recover(); r != nil {
			err = resourceError(r)
		}
		if err != nil {
			err = asResourceError(err)
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.checkSchema(batch.Schema()); err != nil {
		return nil, err
	}
	mem := p.callAllocator()
	assign := make([]int32, batch.NumRows())
	if len(assign) > 0 && p.numPartitions > 1 {
		perm, splits, err := p.locate(ctx, &sc, mem, batch)
		if err != nil {
			return nil, err
		}
		for part := 0; part < p.numPartitions; part++ {
			for pos := splits[part]; pos < splits[part+1]; pos++ {
				assign[perm[pos]] = int32(part)
			}
		}
	}

	bldr := array.NewInt32Builder(mem)
	sc.add(bldr)
	bldr.AppendValues(assign, nil)
	return bldr.NewArray(), nil
}

// callAllocator da a cada llamada su propio presupuesto sobre p.mem.
func (p *BatchPartitioner) callAllocator() memory.Allocator {
	if p.limit > 0 {
		return storage.NewBudgetAllocator(p.mem, p.limit)
	}
	return p.mem
}

func (p *BatchPartitioner) checkSchema(s *arrow.Schema) error {
	for i, b := range p.bound {
		if err := b.Check(s); err != nil {
			return fmt.Errorf("%w: clave %s: %w", ErrSchemaMismatch, p.keys[i].Expr, err)
		}
	}
	return nil
}

// locate evalua las claves, calcula la permutacion estable que ordena el
// batch y ubica cada tupla limite en ese orden (upper bound). Devuelve la
// permutacion y los offsets de corte [0, b1, ..., n].
func (p *BatchPartitioner) locate(ctx context.Context, sc *scope, mem memory.Allocator, batch arrow.Record) ([]int, []int, error) {
	n := int(batch.NumRows())

	cols := make([]arrow.Array, len(p.bound))
	for i, b := range p.bound {
		col, err := b.Eval(ctx, mem, batch)
		if err != nil {
			if errors.Is(err, expr.ErrColumnMismatch) {
				err = fmt.Errorf("%w: %w", ErrSchemaMismatch, err)
			}
			return nil, nil, fmt.Errorf("evaluando clave %s: %w", p.keys[i].Expr, err)
		}
		sc.add(col)
		cols[i] = col
	}
	keyTable := array.NewRecord(p.schema, cols, int64(n))
	sc.add(keyTable)

	self, err := newRowComparator(p.keys, keyTable.Columns(), keyTable.Columns())
	if err != nil {
		return nil, nil, err
	}
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	slices.SortStableFunc(perm, self.compare)
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	cross, err := newRowComparator(p.keys, keyTable.Columns(), p.boundCols)
	if err != nil {
		return nil, nil, err
	}
	splits := make([]int, 0, p.numPartitions+1)
	splits = append(splits, 0)
	prev := 0
	for j := 0; j < p.numPartitions-1; j++ {
		// Los limites estan ordenados: el corte j no puede quedar antes del j-1
		pos := prev + sort.Search(n-prev, func(r int) bool {
			return cross.compare(perm[prev+r], j) > 0
		})
		splits = append(splits, pos)
		prev = pos
	}
	splits = append(splits, n)
	return perm, splits, nil
}

// gather reordena todas las columnas del batch segun perm. Los cortes se
// aplican sobre este record, nunca sobre el batch original.
func (p *BatchPartitioner) gather(ctx context.Context, sc *scope, mem memory.Allocator, batch arrow.Record, perm []int) (arrow.Record, error) {
	bldr := array.NewInt64Builder(mem)
	sc.add(bldr)
	bldr.Reserve(len(perm))
	for _, i := range perm {
		bldr.UnsafeAppend(int64(i))
	}
	indices := bldr.NewArray()
	sc.add(indices)

	cctx := compute.WithAllocator(ctx, mem)
	cols := make([]arrow.Array, batch.NumCols())
	for i, col := range batch.Columns() {
		taken, err := compute.TakeArray(cctx, col, indices)
		if err != nil {
			return nil, fmt.Errorf("reordenando columna %s: %w", batch.Schema().Field(i).Name, err)
		}
		sc.add(taken)
		cols[i] = taken
	}
	sorted := array.NewRecord(batch.Schema(), cols, batch.NumRows())
	sc.add(sorted)
	return sorted, nil
}

// resourceError convierte el panic de un allocator con presupuesto en
// ErrResourceExhaustion. Cualquier otro panic sigue su curso.
func resourceError(r any) error {
	if e, ok := r.(error); ok && errors.Is(e, storage.ErrBudgetExceeded) {
		return fmt.Errorf("%w: %w", ErrResourceExhaustion, e)
	}
	panic(r)
}

// asResourceError marca como ErrResourceExhaustion los errores de presupuesto
// que un kernel de compute devolvio en vez de propagar el panic.
func asResourceError(err error) error {
	if errors.Is(err, storage.ErrBudgetExceeded) && !errors.Is(err, ErrResourceExhaustion) {
		return fmt.Errorf("%w: %w", ErrResourceExhaustion, err)
	}
	return err
}
