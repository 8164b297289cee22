package udf

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ErrOverflow indica un valor cuyo resultado no cabe en el tipo de salida
// (abs o negate del minimo entero).
var ErrOverflow = errors.New("desbordamiento entero")

// KeyFn evalua una funcion de clave sobre una columna completa.
// La columna devuelta pertenece al llamador (debe hacer Release).
type KeyFn func(mem memory.Allocator, in arrow.Array) (arrow.Array, error)

// KeyFunction es una funcion de clave registrada: tipo de salida + evaluacion vectorizada.
type KeyFunction struct {
	Name       string
	ResultType func(in arrow.DataType) (arrow.DataType, error)
	Eval       KeyFn
}

var KeyRegistry = map[string]KeyFunction{
	"lower": {
		Name:       "lower",
		ResultType: stringOnly("lower", arrow.BinaryTypes.String),
		Eval:       mapString(strings.ToLower),
	},
	"upper": {
		Name:       "upper",
		ResultType: stringOnly("upper", arrow.BinaryTypes.String),
		Eval:       mapString(strings.ToUpper),
	},
	"length": {
		Name:       "length",
		ResultType: stringOnly("length", arrow.PrimitiveTypes.Int64),
		Eval: func(mem memory.Allocator, in arrow.Array) (arrow.Array, error) {
			src, ok := in.(*array.String)
			if !ok {
				return nil, fmt.Errorf("length: tipo no soportado %s", in.DataType())
			}
			return mapArray[string, int64](src, array.NewInt64Builder(mem), func(s string) int64 {
				return int64(utf8.RuneCountInString(s))
			}), nil
		},
	},
	"abs": {
		Name:       "abs",
		ResultType: numericOnly("abs"),
		Eval: mapNumeric("abs",
			func(v int32) int32 {
				if v < 0 {
					return -v
				}
				return v
			},
			func(v int64) int64 {
				if v < 0 {
					return -v
				}
				return v
			},
			func(v float64) float64 { return math.Abs(v) }),
	},
	"negate": {
		Name:       "negate",
		ResultType: numericOnly("negate"),
		Eval: mapNumeric("negate",
			func(v int32) int32 { return -v },
			func(v int64) int64 { return -v },
			func(v float64) float64 { return -v }),
	},
}

// GetKeyFunction busca una funcion de clave por nombre.
func GetKeyFunction(name string) (KeyFunction, error) {
	if fn, ok := KeyRegistry[name]; ok {
		return fn, nil
	}
	return KeyFunction{}, fmt.Errorf("key function %s not found", name)
}

// ==========================================
// HELPERS
// ==========================================

type valuer[T any] interface {
	arrow.Array
	Value(int) T
}

type appender[T any] interface {
	array.Builder
	Append(T)
}

// mapArray aplica f valor a valor conservando los nulos.
func mapArray[I, O any](src valuer[I], b appender[O], f func(I) O) arrow.Array {
	defer b.Release()
	b.Reserve(src.Len())
	for i := 0; i < src.Len(); i++ {
		if src.IsNull(i) {
			b.AppendNull()
			continue
		}
		b.Append(f(src.Value(i)))
	}
	return b.NewArray()
}

func mapString(f func(string) string) KeyFn {
	return func(mem memory.Allocator, in arrow.Array) (arrow.Array, error) {
		src, ok := in.(*array.String)
		if !ok {
			return nil, fmt.Errorf("tipo no soportado %s (se esperaba utf8)", in.DataType())
		}
		return mapArray[string, string](src, array.NewStringBuilder(mem), f), nil
	}
}

// mapNumeric rechaza el minimo entero: ni abs ni negate lo pueden representar.
func mapNumeric(name string, f32 func(int32) int32, f64 func(int64) int64, ff func(float64) float64) KeyFn {
	return func(mem memory.Allocator, in arrow.Array) (arrow.Array, error) {
		switch src := in.(type) {
		case *array.Int32:
			if err := rejectValue[int32](name, src, math.MinInt32); err != nil {
				return nil, err
			}
			return mapArray[int32, int32](src, array.NewInt32Builder(mem), f32), nil
		case *array.Int64:
			if err := rejectValue[int64](name, src, math.MinInt64); err != nil {
				return nil, err
			}
			return mapArray[int64, int64](src, array.NewInt64Builder(mem), f64), nil
		case *array.Float64:
			return mapArray[float64, float64](src, array.NewFloat64Builder(mem), ff), nil
		}
		return nil, fmt.Errorf("%s: tipo no soportado %s", name, in.DataType())
	}
}

func rejectValue[T comparable](name string, src valuer[T], bad T) error {
	for i := 0; i < src.Len(); i++ {
		if src.IsValid(i) && src.Value(i) == bad {
			return fmt.Errorf("%s(%v) en la fila %d: %w", name, bad, i, ErrOverflow)
		}
	}
	return nil
}

func stringOnly(name string, out arrow.DataType) func(arrow.DataType) (arrow.DataType, error) {
	return func(in arrow.DataType) (arrow.DataType, error) {
		if in.ID() != arrow.STRING {
			return nil, fmt.Errorf("%s: tipo no soportado %s (se esperaba utf8)", name, in)
		}
		return out, nil
	}
}

func numericOnly(name string) func(arrow.DataType) (arrow.DataType, error) {
	return func(in arrow.DataType) (arrow.DataType, error) {
		switch in.ID() {
		case arrow.INT32, arrow.INT64, arrow.FLOAT64:
			return in, nil
		}
		return nil, fmt.Errorf("%s: tipo no soportado %s", name, in)
	}
}
