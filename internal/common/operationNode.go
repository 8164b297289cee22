package common

// OperationNode describe una etapa del plan que particiona por rango.
type OperationNode struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Keys          []SortKey `json:"keys"`       // Claves de ordenamiento (la izquierda es la mas significativa)
	NumPartitions int       `json:"partitions"` // Numero de particiones de salida
}
