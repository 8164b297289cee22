package rangepart

import (
	"bytes"
	"cmp"
	"fmt"
	"math"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"mini-spark-range/internal/common"
)

// cmpFunc compara left[i] con right[j]; ambos valores son no nulos.
type cmpFunc func(i, j int) int

type valuer[T any] interface {
	arrow.Array
	Value(int) T
}

func ordered[T cmp.Ordered, A valuer[T]](left, right arrow.Array) cmpFunc {
	l, r := left.(A), right.(A)
	return func(i, j int) int { return cmp.Compare(l.Value(i), r.Value(j)) }
}

// floating ordena NaN como el mayor valor (todos los NaN son iguales).
func floating[T float32 | float64, A valuer[T]](left, right arrow.Array) cmpFunc {
	l, r := left.(A), right.(A)
	return func(i, j int) int {
		a, b := l.Value(i), r.Value(j)
		an, bn := math.IsNaN(float64(a)), math.IsNaN(float64(b))
		switch {
		case an && bn:
			return 0
		case an:
			return 1
		case bn:
			return -1
		}
		return cmp.Compare(a, b)
	}
}

// newValueComparator resuelve el comparador de un par de columnas del mismo
// tipo. Se llama una vez por batch, nunca por fila.
func newValueComparator(left, right arrow.Array) (cmpFunc, error) {
	if !arrow.TypeEqual(left.DataType(), right.DataType()) {
		return nil, fmt.Errorf("%w: %s frente a %s", ErrSchemaMismatch, left.DataType(), right.DataType())
	}
	switch left.(type) {
	case *array.Int8:
		return ordered[int8, *array.Int8](left, right), nil
	case *array.Int16:
		return ordered[int16, *array.Int16](left, right), nil
	case *array.Int32:
		return ordered[int32, *array.Int32](left, right), nil
	case *array.Int64:
		return ordered[int64, *array.Int64](left, right), nil
	case *array.Uint8:
		return ordered[uint8, *array.Uint8](left, right), nil
	case *array.Uint16:
		return ordered[uint16, *array.Uint16](left, right), nil
	case *array.Uint32:
		return ordered[uint32, *array.Uint32](left, right), nil
	case *array.Uint64:
		return ordered[uint64, *array.Uint64](left, right), nil
	case *array.Float32:
		return floating[float32, *array.Float32](left, right), nil
	case *array.Float64:
		return floating[float64, *array.Float64](left, right), nil
	case *array.Date32:
		return ordered[arrow.Date32, *array.Date32](left, right), nil
	case *array.Date64:
		return ordered[arrow.Date64, *array.Date64](left, right), nil
	case *array.Time32:
		return ordered[arrow.Time32, *array.Time32](left, right), nil
	case *array.Time64:
		return ordered[arrow.Time64, *array.Time64](left, right), nil
	case *array.Timestamp:
		return ordered[arrow.Timestamp, *array.Timestamp](left, right), nil
	case *array.Duration:
		return ordered[arrow.Duration, *array.Duration](left, right), nil
	case *array.String:
		return ordered[string, *array.String](left, right), nil
	case *array.LargeString:
		return ordered[string, *array.LargeString](left, right), nil
	case *array.Binary:
		l, r := left.(*array.Binary), right.(*array.Binary)
		return func(i, j int) int { return bytes.Compare(l.Value(i), r.Value(j)) }, nil
	case *array.LargeBinary:
		l, r := left.(*array.LargeBinary), right.(*array.LargeBinary)
		return func(i, j int) int { return bytes.Compare(l.Value(i), r.Value(j)) }, nil
	case *array.Boolean:
		l, r := left.(*array.Boolean), right.(*array.Boolean)
		return func(i, j int) int { return cmpBool(l.Value(i), r.Value(j)) }, nil
	case *array.Decimal128:
		// Misma escala garantizada por TypeEqual
		l, r := left.(*array.Decimal128), right.(*array.Decimal128)
		return func(i, j int) int { return l.Value(i).Cmp(r.Value(j)) }, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrComparisonFailure, left.DataType())
}

func cmpBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

// keyComparator aplica direccion y politica de nulos de una clave.
// Los nulos van primero o al final sin importar la direccion.
type keyComparator struct {
	values      cmpFunc
	left, right arrow.Array
	hasNulls    bool
	descending  bool
	nullsFirst  bool
}

func (k *keyComparator) compare(i, j int) int {
	if k.hasNulls {
		ln, rn := k.left.IsNull(i), k.right.IsNull(j)
		switch {
		case ln && rn:
			return 0
		case ln:
			if k.nullsFirst {
				return -1
			}
			return 1
		case rn:
			if k.nullsFirst {
				return 1
			}
			return -1
		}
	}
	c := k.values(i, j)
	if k.descending {
		return -c
	}
	return c
}

// rowComparator es el orden compuesto: lexicografico, la clave de la
// izquierda es la mas significativa.
type rowComparator []keyComparator

func newRowComparator(keys []common.SortKey, left, right []arrow.Array) (rowComparator, error) {
	if len(left) != len(keys) || len(right) != len(keys) {
		return nil, fmt.Errorf("%w: %d claves, %d y %d columnas", ErrSchemaMismatch, len(keys), len(left), len(right))
	}
	rc := make(rowComparator, len(keys))
	for i, k := range keys {
		values, err := newValueComparator(left[i], right[i])
		if err != nil {
			return nil, fmt.Errorf("clave %s: %w", k.Expr, err)
		}
		rc[i] = keyComparator{
			values:     values,
			left:       left[i],
			right:      right[i],
			hasNulls:   left[i].NullN() > 0 || right[i].NullN() > 0,
			descending: k.Direction == common.Descending,
			nullsFirst: k.EffectiveNulls() == common.NullsFirst,
		}
	}
	return rc, nil
}

func (rc rowComparator) compare(i, j int) int {
	for k := range rc {
		if c := rc[k].compare(i, j); c != 0 {
			return c
		}
	}
	return 0
}
