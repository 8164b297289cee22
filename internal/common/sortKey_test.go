package common

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-spark-range/internal/expr"
)

func TestEffectiveNulls(t *testing.T) {
	tests := []struct {
		name string
		key  SortKey
		want NullOrdering
	}{
		{name: "asc por defecto", key: Asc(expr.Col("a")), want: NullsFirst},
		{name: "desc por defecto", key: Desc(expr.Col("a")), want: NullsLast},
		{name: "asc declarada", key: SortKey{Expr: expr.Col("a"), Nulls: NullsLast}, want: NullsLast},
		{name: "desc declarada", key: SortKey{Expr: expr.Col("a"), Direction: Descending, Nulls: NullsFirst}, want: NullsFirst},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.key.EffectiveNulls())
		})
	}
}

func TestParseSortKey(t *testing.T) {
	tests := []struct {
		in        string
		want      string
		expectErr bool
	}{
		{in: "price", want: "price asc nulls_first"},
		{in: "price:desc", want: "price desc nulls_last"},
		{in: "lower(name):asc:nulls_last", want: "lower(name) asc nulls_last"},
		{in: "ts:DESC:NULLS_FIRST", want: "ts desc nulls_first"},
		{in: "price:sideways", expectErr: true},
		{in: ":asc", expectErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			k, err := ParseSortKey(tt.in)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, k.String())
		})
	}
}

func TestOperationNode_JSONKeys(t *testing.T) {
	in := `{"id":"split","type":"RANGE_PARTITION","keys":["price:desc","lower(name):asc:nulls_last"],"partitions":4}`

	var node OperationNode
	require.NoError(t, json.Unmarshal([]byte(in), &node))
	require.Len(t, node.Keys, 2)
	assert.Equal(t, "price desc nulls_last", node.Keys[0].String())
	assert.Equal(t, "lower(name) asc nulls_last", node.Keys[1].String())
	assert.Equal(t, 4, node.NumPartitions)

	out, err := json.Marshal(node)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))

	err = json.Unmarshal([]byte(`{"keys":["price:sideways"]}`), &node)
	assert.Error(t, err)
}
