package graph

import (
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Node(t *testing.T) {
	v := Decode(dbtype.Node{
		ElementId: "4:db:1",
		Labels:    []string{"Entity", "Person"},
		Props:     map[string]any{"id": "e-1", "born": dbtype.Date(time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC))},
	})

	require.Equal(t, KindNode, v.Kind)
	assert.Equal(t, "4:db:1", v.Node.ID)
	assert.Equal(t, []string{"Entity", "Person"}, v.Node.Labels)
	assert.Equal(t, "1990-05-17", v.Node.Properties["born"])
}

func TestDecode_Relationship(t *testing.T) {
	v := Decode(dbtype.Relationship{
		ElementId:      "5:db:7",
		StartElementId: "4:db:1",
		EndElementId:   "4:db:2",
		Type:           "WORKS_AT",
		Props:          map[string]any{"since": int64(2019)},
	})

	require.Equal(t, KindRelationship, v.Kind)
	assert.Equal(t, Relationship{
		ID:          "5:db:7",
		Type:        "WORKS_AT",
		StartNodeID: "4:db:1",
		EndNodeID:   "4:db:2",
		Properties:  map[string]any{"since": int64(2019)},
	}, v.Relationship)
}

func TestDecode_Path(t *testing.T) {
	a := dbtype.Node{ElementId: "a"}
	b := dbtype.Node{ElementId: "b"}
	c := dbtype.Node{ElementId: "c"}
	v := Decode(dbtype.Path{
		Nodes: []dbtype.Node{a, b, c},
		Relationships: []dbtype.Relationship{
			{ElementId: "ab", StartElementId: "a", EndElementId: "b", Type: "KNOWS"},
			{ElementId: "cb", StartElementId: "c", EndElementId: "b", Type: "KNOWS"},
		},
	})

	require.Equal(t, KindPath, v.Kind)
	p := v.Path
	assert.Equal(t, 2, p.Length)
	assert.Equal(t, "a", p.Start.ID)
	assert.Equal(t, "c", p.End.ID)
	require.Len(t, p.Segments, 2)
	assert.Equal(t, "b", p.Segments[1].Start.ID, "segments follow walk order even against edge direction")
	assert.Equal(t, "cb", p.Segments[1].Relationship.ID)

	ids := []string{}
	for _, n := range p.Nodes() {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
	assert.Len(t, p.Relationships(), 2)
}

func TestDecode_ListAndScalars(t *testing.T) {
	v := Decode([]any{int64(1), "two", dbtype.Node{ElementId: "n"}, []any{3.5}})

	require.Equal(t, KindList, v.Kind)
	require.Len(t, v.List, 4)
	assert.Equal(t, ScalarValue(int64(1)), v.List[0])
	assert.Equal(t, KindNode, v.List[2].Kind)
	assert.Equal(t, KindList, v.List[3].Kind)

	assert.Equal(t, ScalarValue(nil), Decode(nil))
	dur := Decode(dbtype.Duration{Days: 1, Seconds: 7200})
	assert.IsType(t, "", dur.Scalar, "durations are rendered as text")
}

func TestRecordAccessors(t *testing.T) {
	rec := Record{
		Keys:   []string{"count", "score", "name", "node"},
		Values: []Value{ScalarValue(int64(3)), ScalarValue(0.25), ScalarValue("x"), NodeValue(Node{ID: "n"})},
	}

	assert.Equal(t, int64(3), rec.Int("count"))
	assert.Equal(t, 0.25, rec.Float("score"))
	assert.Equal(t, 3.0, rec.Float("count"))
	assert.Equal(t, "x", rec.String("name"))
	assert.Zero(t, rec.Int("node"), "non-scalar reads as zero")
	assert.Zero(t, rec.Int("missing"))
	_, ok := rec.Get("missing")
	assert.False(t, ok)
}
