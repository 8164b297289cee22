package rangepart

import (
	"github.com/apache/arrow-go/v18/arrow"

	"mini-spark-range/internal/common"
	"mini-spark-range/internal/expr"
)

// Distribution es una distribucion requerida por el planificador.
type Distribution interface {
	distribution()
}

// OrderedDistribution exige que la salida este ordenada globalmente por Ordering.
type OrderedDistribution struct {
	Ordering []common.SortKey
}

// ClusteredDistribution exige que las filas con los mismos valores en
// Clustering caigan en la misma particion. RequiredNumPartitions no
// interviene en Satisfies.
type ClusteredDistribution struct {
	Clustering            []expr.Expr
	RequiredNumPartitions *int
}

type UnspecifiedDistribution struct{}

// AllTuples exige que todas las filas esten en una sola particion.
type AllTuples struct{}

type BroadcastDistribution struct{}

func (OrderedDistribution) distribution()     {}
func (ClusteredDistribution) distribution()   {}
func (UnspecifiedDistribution) distribution() {}
func (AllTuples) distribution()               {}
func (BroadcastDistribution) distribution()   {}

// Satisfies decide si un particionado por rango sobre keys ya cumple required.
//
// Ordenada: una secuencia debe ser prefijo de la otra (misma expresion,
// direccion y posicion efectiva de los nulos en el tramo comun). Agrupada: cada expresion de clave debe
// aparecer en el conjunto requerido. Cualquier otro tipo devuelve false.
func Satisfies(keys []common.SortKey, required Distribution) bool {
	switch d := required.(type) {
	case OrderedDistribution:
		return orderingPrefixMatch(keys, d.Ordering)
	case *OrderedDistribution:
		return d != nil && orderingPrefixMatch(keys, d.Ordering)
	case ClusteredDistribution:
		return clusteredBy(keys, d.Clustering)
	case *ClusteredDistribution:
		return d != nil && clusteredBy(keys, d.Clustering)
	}
	return false
}

func orderingPrefixMatch(keys, required []common.SortKey) bool {
	m := min(len(keys), len(required))
	for i := 0; i < m; i++ {
		if keys[i].Direction != required[i].Direction ||
			keys[i].EffectiveNulls() != required[i].EffectiveNulls() ||
			!expr.Equal(keys[i].Expr, required[i].Expr) {
			return false
		}
	}
	return true
}

func clusteredBy(keys []common.SortKey, clustering []expr.Expr) bool {
	for _, k := range keys {
		found := false
		for _, c := range clustering {
			if expr.Equal(k.Expr, c) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// RangePartitioning es el nodo que ve el planificador: sus hijos son las
// expresiones de las claves y produce un id de particion interno, nunca nulo.
type RangePartitioning struct {
	Keys          []common.SortKey
	NumPartitions int
}

func (r *RangePartitioning) Children() []expr.Expr {
	out := make([]expr.Expr, len(r.Keys))
	for i, k := range r.Keys {
		out[i] = k.Expr
	}
	return out
}

func (r *RangePartitioning) Nullable() bool { return false }

func (r *RangePartitioning) DataType() arrow.DataType { return arrow.PrimitiveTypes.Int32 }

// Satisfies combina el chequeo propio del rango con el chequeo por defecto
// de la plataforma para las distribuciones que el rango no decide.
func (r *RangePartitioning) Satisfies(required Distribution) bool {
	if Satisfies(r.Keys, required) {
		return true
	}
	switch required.(type) {
	case UnspecifiedDistribution, *UnspecifiedDistribution:
		return true
	case AllTuples, *AllTuples:
		return r.NumPartitions == 1
	}
	return false
}
