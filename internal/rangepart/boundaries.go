package rangepart

import (
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"mini-spark-range/internal/common"
	"mini-spark-range/internal/expr"
)

// BoundarySource es el colaborador externo (muestreo) que fija el numero
// de particiones y las NumPartitions()-1 tuplas limite, en orden.
type BoundarySource interface {
	NumPartitions() int
	// Boundaries devuelve una referencia que pasa a ser del llamador.
	Boundaries(schema *arrow.Schema) (arrow.Record, error)
}

// StaticBoundaries sirve una tabla de limites ya calculada.
type StaticBoundaries struct {
	rec arrow.Record
}

var _ BoundarySource = (*StaticBoundaries)(nil)

// NewStaticBoundaries retiene rec; NumPartitions es rec.NumRows()+1.
func NewStaticBoundaries(rec arrow.Record) *StaticBoundaries {
	rec.Retain()
	return &StaticBoundaries{rec: rec}
}

// BoundariesFromJSON decodifica un arreglo JSON de filas limite tipadas por schema.
// Un arreglo vacio equivale a una sola particion.
func BoundariesFromJSON(mem memory.Allocator, schema *arrow.Schema, r io.Reader) (*StaticBoundaries, error) {
	rec, _, err := array.RecordFromJSON(mem, schema, r)
	if err != nil {
		return nil, fmt.Errorf("decodificando limites: %w", err)
	}
	return &StaticBoundaries{rec: rec}, nil
}

func (s *StaticBoundaries) NumPartitions() int { return int(s.rec.NumRows()) + 1 }

func (s *StaticBoundaries) Boundaries(*arrow.Schema) (arrow.Record, error) {
	s.rec.Retain()
	return s.rec, nil
}

func (s *StaticBoundaries) Release() { s.rec.Release() }

// PartitioningSchema deriva el esquema de la tabla de limites: un campo por
// clave, en orden de clave, con el tipo de la expresion resuelta.
func PartitioningSchema(schema *arrow.Schema, keys []common.SortKey) (*arrow.Schema, error) {
	bound, err := bindKeys(schema, keys)
	if err != nil {
		return nil, err
	}
	return partitioningSchema(keys, bound), nil
}

func bindKeys(schema *arrow.Schema, keys []common.SortKey) ([]expr.Bound, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: se necesita al menos una clave", ErrSchemaMismatch)
	}
	bound := make([]expr.Bound, len(keys))
	for i, k := range keys {
		if k.Expr == nil {
			return nil, fmt.Errorf("%w: clave %d sin expresion", ErrSchemaMismatch, i)
		}
		b, err := k.Expr.Bind(schema)
		if err != nil {
			return nil, fmt.Errorf("%w: clave %s: %w", ErrSchemaMismatch, k.Expr, err)
		}
		bound[i] = b
	}
	return bound, nil
}

func partitioningSchema(keys []common.SortKey, bound []expr.Bound) *arrow.Schema {
	fields := make([]arrow.Field, len(keys))
	for i, k := range keys {
		fields[i] = arrow.Field{Name: k.Expr.String(), Type: bound[i].DataType(), Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}
