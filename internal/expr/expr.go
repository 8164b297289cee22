// Package expr resuelve las expresiones de clave contra el esquema de un batch.
//
// La resolucion ocurre una sola vez (Bind); la evaluacion por batch solo
// verifica que la columna siga en la misma posicion con el mismo tipo.
package expr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"mini-spark-range/internal/udf"
)

var (
	ErrUnknownColumn  = errors.New("columna desconocida")
	ErrColumnMismatch = errors.New("la columna no coincide con el esquema resuelto")
)

// Expr es una expresion de clave sin resolver.
type Expr interface {
	// String es la forma canonica; dos expresiones son iguales si coinciden aqui.
	String() string
	Bind(schema *arrow.Schema) (Bound, error)
}

// Bound es una expresion resuelta contra un esquema concreto.
type Bound interface {
	DataType() arrow.DataType
	// Check verifica que schema siga teniendo las columnas resueltas.
	Check(schema *arrow.Schema) error
	// Eval devuelve una columna cuya referencia pertenece al llamador.
	Eval(ctx context.Context, mem memory.Allocator, rec arrow.Record) (arrow.Array, error)
}

// Equal compara semanticamente dos expresiones.
func Equal(a, b Expr) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.String() == b.String()
}

// ==========================================
// COLUMNA
// ==========================================

// Column referencia directamente una columna del batch por nombre.
type Column struct {
	Name string `json:"name"`
}

func Col(name string) Column { return Column{Name: name} }

func (c Column) String() string { return c.Name }

func (c Column) Bind(schema *arrow.Schema) (Bound, error) {
	idx := schema.FieldIndices(c.Name)
	switch len(idx) {
	case 0:
		return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, c.Name)
	case 1:
		return &BoundColumn{Index: idx[0], Field: schema.Field(idx[0])}, nil
	}
	return nil, fmt.Errorf("%w: %q es ambigua (%d columnas)", ErrUnknownColumn, c.Name, len(idx))
}

// BoundColumn es una columna resuelta a una posicion fija.
type BoundColumn struct {
	Index int
	Field arrow.Field
}

func (b *BoundColumn) DataType() arrow.DataType { return b.Field.Type }

func (b *BoundColumn) Check(schema *arrow.Schema) error {
	if b.Index >= schema.NumFields() {
		return fmt.Errorf("%w: %q en posicion %d, el batch tiene %d columnas",
			ErrColumnMismatch, b.Field.Name, b.Index, schema.NumFields())
	}
	f := schema.Field(b.Index)
	if f.Name != b.Field.Name || !arrow.TypeEqual(f.Type, b.Field.Type) {
		return fmt.Errorf("%w: se esperaba %s %s en posicion %d, hay %s %s",
			ErrColumnMismatch, b.Field.Name, b.Field.Type, b.Index, f.Name, f.Type)
	}
	return nil
}

func (b *BoundColumn) Eval(_ context.Context, _ memory.Allocator, rec arrow.Record) (arrow.Array, error) {
	if err := b.Check(rec.Schema()); err != nil {
		return nil, err
	}
	col := rec.Column(b.Index)
	col.Retain()
	return col, nil
}

// ==========================================
// LLAMADA A FUNCION DE CLAVE
// ==========================================

// Call aplica una funcion de clave registrada en udf a otra expresion.
type Call struct {
	Func string `json:"func"`
	Arg  Expr   `json:"arg"`
}

func (c Call) String() string { return c.Func + "(" + c.Arg.String() + ")" }

func (c Call) Bind(schema *arrow.Schema) (Bound, error) {
	kf, err := udf.GetKeyFunction(c.Func)
	if err != nil {
		return nil, err
	}
	arg, err := c.Arg.Bind(schema)
	if err != nil {
		return nil, err
	}
	dt, err := kf.ResultType(arg.DataType())
	if err != nil {
		return nil, err
	}
	return &boundCall{fn: kf, arg: arg, dt: dt}, nil
}

type boundCall struct {
	fn  udf.KeyFunction
	arg Bound
	dt  arrow.DataType
}

func (b *boundCall) DataType() arrow.DataType { return b.dt }

func (b *boundCall) Check(schema *arrow.Schema) error { return b.arg.Check(schema) }

func (b *boundCall) Eval(ctx context.Context, mem memory.Allocator, rec arrow.Record) (arrow.Array, error) {
	in, err := b.arg.Eval(ctx, mem, rec)
	if err != nil {
		return nil, err
	}
	defer in.Release()
	return b.fn.Eval(mem, in)
}

// ==========================================
// PARSER
// ==========================================

// Parse interpreta "col" o "fn(expr)", anidable: "abs(negate(x))".
func Parse(s string) (Expr, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("expresion vacia")
	}
	open := strings.IndexByte(s, '(')
	if open < 0 {
		if strings.ContainsAny(s, ")") {
			return nil, fmt.Errorf("expresion invalida %q", s)
		}
		return Col(s), nil
	}
	if !strings.HasSuffix(s, ")") || open == 0 {
		return nil, fmt.Errorf("expresion invalida %q", s)
	}
	arg, err := Parse(s[open+1 : len(s)-1])
	if err != nil {
		return nil, err
	}
	return Call{Func: strings.TrimSpace(s[:open]), Arg: arg}, nil
}
