package common

// ShuffleMeta contiene la metadata de un sub-batch producido por el particionado.
type ShuffleMeta struct {
	PartitionKey int   `json:"partition_key"` // ID de la particion (0 a N-1)
	Rows         int64 `json:"rows"`          // Filas del sub-batch
	Size         int64 `json:"size"`          // Tamano en bytes de los buffers
}
