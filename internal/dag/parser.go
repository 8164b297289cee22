package dag

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/google/uuid"

	"mini-spark-range/internal/common"
	"mini-spark-range/internal/rangepart"
)

// ParseJob decodifica un JobRequest en JSON. Si no trae JobID se le asigna uno.
func ParseJob(r io.Reader) (*common.JobRequest, error) {
	var job common.JobRequest
	if err := json.NewDecoder(r).Decode(&job); err != nil {
		return nil, fmt.Errorf("job invalido: %w", err)
	}
	if job.JobID == "" {
		job.JobID = "job-" + uuid.New().String()
	}
	for _, node := range job.Graph {
		if node.Type != common.OpTypeRangePartition {
			continue
		}
		if err := validateRangeNode(node); err != nil {
			return nil, err
		}
	}
	return &job, nil
}

// RangeStages devuelve las etapas del grafo que particionan por rango, en orden.
func RangeStages(job *common.JobRequest) []common.OperationNode {
	var out []common.OperationNode
	for _, node := range job.Graph {
		if node.Type == common.OpTypeRangePartition {
			out = append(out, node)
		}
	}
	return out
}

// GenerateBatchTasks crea una Task por batch de entrada para una etapa de
// particionado por rango. Los batches quedan prestados a las tareas.
func GenerateBatchTasks(job *common.JobRequest, node common.OperationNode, batches []arrow.Record) ([]common.Task, error) {
	if node.Type != common.OpTypeRangePartition {
		return nil, fmt.Errorf("tipo de operacion no soportada: %s", node.Type)
	}
	if err := validateRangeNode(node); err != nil {
		return nil, err
	}

	tasks := make([]common.Task, len(batches))
	for i, batch := range batches {
		tasks[i] = common.Task{
			TaskID:     uuid.New().String(),
			JobID:      job.JobID,
			StageID:    node.ID,
			Operation:  node,
			BatchIndex: i,
			Batch:      batch,
		}
	}
	return tasks, nil
}

func validateRangeNode(node common.OperationNode) error {
	if node.NumPartitions < 1 {
		return fmt.Errorf("%w: etapa %s con %d particiones", rangepart.ErrInvalidBoundaries, node.ID, node.NumPartitions)
	}
	if len(node.Keys) == 0 {
		return fmt.Errorf("etapa %s sin claves de ordenamiento", node.ID)
	}
	return nil
}

// NeedsExchange indica si el planificador debe insertar un intercambio por
// rango entre child y su consumidor. Sin particionado previo siempre hace falta.
func NeedsExchange(child *rangepart.RangePartitioning, required rangepart.Distribution) bool {
	if child == nil {
		return true
	}
	return !child.Satisfies(required)
}
