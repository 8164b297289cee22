package rangepart

import "errors"

var (
	// ErrSchemaMismatch: falta una columna de clave en el batch, cambio su tipo,
	// o la tabla de limites no coincide con el esquema de particionado.
	ErrSchemaMismatch = errors.New("esquema incompatible")
	// ErrComparisonFailure: el tipo de una clave no se puede ordenar.
	ErrComparisonFailure = errors.New("tipo de clave no comparable")
	// ErrResourceExhaustion: se agoto la memoria al construir intermedios.
	ErrResourceExhaustion = errors.New("recursos agotados")
	// ErrInvalidBoundaries: numero de limites incorrecto o limites desordenados.
	ErrInvalidBoundaries = errors.New("limites de particion invalidos")
)
