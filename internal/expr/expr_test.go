package expr

import (
	"context"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
}, nil)

func TestParse(t *testing.T) {
	tests := []struct {
		in        string
		want      string
		expectErr bool
	}{
		{in: "id", want: "id"},
		{in: " lower(name) ", want: "lower(name)"},
		{in: "abs(negate(id))", want: "abs(negate(id))"},
		{in: "", expectErr: true},
		{in: "(id)", expectErr: true},
		{in: "lower(name", expectErr: true},
		{in: "id)", expectErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			e, err := Parse(tt.in)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.String())
		})
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(Col("a"), Col("a")))
	assert.False(t, Equal(Col("a"), Col("b")))
	assert.True(t, Equal(Call{Func: "lower", Arg: Col("a")}, Call{Func: "lower", Arg: Col("a")}))
	assert.False(t, Equal(Call{Func: "lower", Arg: Col("a")}, Col("a")))
	assert.False(t, Equal(nil, Col("a")))
}

func TestBindAndEval(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	rec, _, err := array.RecordFromJSON(mem, testSchema, strings.NewReader(`[
		{"id": -2, "name": "Ana"},
		{"id": 5, "name": null}
	]`))
	require.NoError(t, err)
	defer rec.Release()

	t.Run("columna directa", func(t *testing.T) {
		b, err := Col("name").Bind(testSchema)
		require.NoError(t, err)
		assert.Equal(t, 1, b.(*BoundColumn).Index)

		col, err := b.Eval(context.Background(), mem, rec)
		require.NoError(t, err)
		defer col.Release()
		assert.Equal(t, "Ana", col.(*array.String).Value(0))
		assert.True(t, col.IsNull(1))
	})

	t.Run("funcion evaluada", func(t *testing.T) {
		b, err := Call{Func: "abs", Arg: Col("id")}.Bind(testSchema)
		require.NoError(t, err)
		assert.True(t, arrow.TypeEqual(arrow.PrimitiveTypes.Int64, b.DataType()))

		col, err := b.Eval(context.Background(), mem, rec)
		require.NoError(t, err)
		defer col.Release()
		assert.Equal(t, []int64{2, 5}, col.(*array.Int64).Int64Values())
	})

	t.Run("columna desconocida", func(t *testing.T) {
		_, err := Col("precio").Bind(testSchema)
		assert.ErrorIs(t, err, ErrUnknownColumn)
	})

	t.Run("tipo incompatible con la funcion", func(t *testing.T) {
		_, err := Call{Func: "lower", Arg: Col("id")}.Bind(testSchema)
		assert.Error(t, err)
	})

	t.Run("batch con otro esquema", func(t *testing.T) {
		b, err := Col("name").Bind(testSchema)
		require.NoError(t, err)

		other := arrow.NewSchema([]arrow.Field{
			{Name: "id", Type: arrow.PrimitiveTypes.Int64},
			{Name: "name", Type: arrow.PrimitiveTypes.Int64},
		}, nil)
		rec2, _, err := array.RecordFromJSON(mem, other, strings.NewReader(`[{"id": 1, "name": 2}]`))
		require.NoError(t, err)
		defer rec2.Release()

		_, err = b.Eval(context.Background(), mem, rec2)
		assert.ErrorIs(t, err, ErrColumnMismatch)
	})
}
