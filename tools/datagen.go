package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

var ventasSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int64},
	{Name: "price", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	{Name: "name", Type: arrow.BinaryTypes.String},
}, nil)

var productos = []string{"Laptop", "mouse", "Teclado", "monitor", "Cable", "silla", "Mesa", "lampara"}

// Genera un archivo Arrow IPC de ventas y los limites de precio que lo
// reparten en particiones de tamano parecido, para probar "rangepart split".
func main() {
	out := flag.String("out", "data/inputs", "directorio de salida")
	batches := flag.Int("batches", 4, "numero de batches")
	rows := flag.Int("rows", 1000, "filas por batch")
	partitions := flag.Int("partitions", 4, "particiones de los limites generados")
	seed := flag.Uint64("seed", 42, "semilla")
	flag.Parse()

	if err := generate(*out, *batches, *rows, *partitions, *seed); err != nil {
		slog.Error("Fallo generando datos", slog.Any("error", err))
		os.Exit(1)
	}
}

func generate(dir string, batches, rows, partitions int, seed uint64) error {
	if partitions < 1 {
		return fmt.Errorf("particiones debe ser >= 1, no %d", partitions)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	mem := memory.NewGoAllocator()

	dataPath := filepath.Join(dir, "ventas.arrow")
	f, err := os.Create(dataPath)
	if err != nil {
		return err
	}
	defer f.Close()
	w, err := ipc.NewFileWriter(f, ipc.WithSchema(ventasSchema), ipc.WithAllocator(mem))
	if err != nil {
		return err
	}

	var prices []int64
	b := array.NewRecordBuilder(mem, ventasSchema)
	defer b.Release()
	id := int64(0)
	for range batches {
		for range rows {
			id++
			b.Field(0).(*array.Int64Builder).Append(id)
			// Uno de cada veinte precios es nulo
			if r.IntN(20) == 0 {
				b.Field(1).(*array.Int64Builder).AppendNull()
			} else {
				p := r.Int64N(10_000)
				prices = append(prices, p)
				b.Field(1).(*array.Int64Builder).Append(p)
			}
			b.Field(2).(*array.StringBuilder).Append(productos[r.IntN(len(productos))])
		}
		rec := b.NewRecord()
		err := w.Write(rec)
		rec.Release()
		if err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	boundsPath := filepath.Join(dir, "ventas_bounds.json")
	if err := writeBounds(boundsPath, prices, partitions); err != nil {
		return err
	}
	slog.Info("Datos generados",
		slog.String("input", dataPath),
		slog.String("boundaries", boundsPath),
		slog.Int("rows", batches*rows))
	return nil
}

// writeBounds escribe los cuantiles de prices como limites ascendentes de "price".
func writeBounds(path string, prices []int64, partitions int) error {
	slices.Sort(prices)
	bounds := make([]map[string]int64, 0, partitions-1)
	for i := 1; i < partitions && len(prices) > 0; i++ {
		bounds = append(bounds, map[string]int64{"price": prices[i*len(prices)/partitions]})
	}
	data, err := json.MarshalIndent(bounds, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
