package common

import "github.com/apache/arrow-go/v18/arrow"

// Task es la unidad de trabajo del executor: un batch a particionar.
type Task struct {
	TaskID     string        `json:"task_id"`
	JobID      string        `json:"job_id"`
	StageID    string        `json:"stage_id"`
	Operation  OperationNode `json:"operation"`
	BatchIndex int           `json:"batch_index"` // Posicion del batch en la entrada
	Batch      arrow.Record  `json:"-"`           // Prestado: la tarea no lo libera
}
