package common

type TaskReport struct {
	TaskID        string        `json:"task_id"`
	JobID         string        `json:"job_id"`
	StageID       string        `json:"stage_id"`
	Status        string        `json:"status"` // SUCCESS, FAILURE, CANCELLED
	ErrorMsg      string        `json:"error_msg"`
	InputRows     int64         `json:"input_rows"`
	Timestamp     int64         `json:"timestamp"`       // Segundos, para ordenar facilmente
	DurationMS    int64         `json:"duration_ms"`     // Duracion de la tarea en milisegundos
	ShuffleOutput []ShuffleMeta `json:"shuffle_outputs"` // Un registro por sub-batch no vacio
}
