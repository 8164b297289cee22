package common

type JobRequest struct {
	JobID string          `json:"job_id"`
	Name  string          `json:"name"`  // Nombre del trabajo (ej: "split-ventas")
	Graph []OperationNode `json:"graph"` // Etapas; aqui solo se ejecutan las de tipo RANGE_PARTITION
}
