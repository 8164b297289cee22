package common

import "runtime"

// --- Tipos de operaciones, estados y valores por defecto ---

// Tipos de Operaciones (OperationNode.Type)
const (
	OpTypeRangePartition = "RANGE_PARTITION"
	// Solo el particionado por rango vive en este modulo; HASH/ROUND_ROBIN son de otro operador
)

// Estados de una Tarea (TaskReport.Status)
const (
	TaskStatusSuccess   = "SUCCESS"
	TaskStatusFailure   = "FAILURE"
	TaskStatusCancelled = "CANCELLED"
)

// DefaultThreads es el tamano del pool cuando la configuracion no lo fija.
var DefaultThreads = runtime.NumCPU()
