package common

import (
	"fmt"
	"strings"

	"mini-spark-range/internal/expr"
)

// Direction es la direccion de orden de una clave (SQL: ASC/DESC).
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// NullOrdering decide donde van los nulos de una clave.
// NullsDefault se resuelve a partir de la direccion (ver EffectiveNulls).
type NullOrdering int

const (
	NullsDefault NullOrdering = iota
	NullsFirst
	NullsLast
)

func (n NullOrdering) String() string {
	switch n {
	case NullsFirst:
		return "nulls_first"
	case NullsLast:
		return "nulls_last"
	}
	return "nulls_default"
}

// SortKey es una clave de ordenamiento: expresion + direccion + politica de nulos.
// En JSON viaja como texto con el formato de ParseSortKey.
type SortKey struct {
	Expr      expr.Expr
	Direction Direction
	Nulls     NullOrdering
}

// EffectiveNulls: ASC -> nulos primero, DESC -> nulos al final, salvo que la clave lo declare.
func (k SortKey) EffectiveNulls() NullOrdering {
	if k.Nulls != NullsDefault {
		return k.Nulls
	}
	if k.Direction == Descending {
		return NullsLast
	}
	return NullsFirst
}

func (k SortKey) String() string {
	return fmt.Sprintf("%s %s %s", k.Expr, k.Direction, k.EffectiveNulls())
}

// Asc y Desc son atajos para construir claves sobre una expresion.
func Asc(e expr.Expr) SortKey  { return SortKey{Expr: e, Direction: Ascending} }
func Desc(e expr.Expr) SortKey { return SortKey{Expr: e, Direction: Descending} }

// ParseSortKey interpreta "expr[:asc|desc][:nulls_first|nulls_last]".
// El separador ':' no puede aparecer dentro de la expresion.
func ParseSortKey(s string) (SortKey, error) {
	parts := strings.Split(s, ":")
	e, err := expr.Parse(parts[0])
	if err != nil {
		return SortKey{}, err
	}
	k := SortKey{Expr: e}
	for _, p := range parts[1:] {
		switch strings.ToLower(strings.TrimSpace(p)) {
		case "asc":
			k.Direction = Ascending
		case "desc":
			k.Direction = Descending
		case "nulls_first":
			k.Nulls = NullsFirst
		case "nulls_last":
			k.Nulls = NullsLast
		default:
			return SortKey{}, fmt.Errorf("modificador de clave desconocido %q en %q", p, s)
		}
	}
	return k, nil
}

func (k SortKey) MarshalText() ([]byte, error) {
	if k.Expr == nil {
		return nil, fmt.Errorf("clave sin expresion")
	}
	s := k.Expr.String() + ":" + k.Direction.String()
	if k.Nulls != NullsDefault {
		s += ":" + k.Nulls.String()
	}
	return []byte(s), nil
}

func (k *SortKey) UnmarshalText(b []byte) error {
	parsed, err := ParseSortKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
