package schema

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestNew_FixedColumnsAlwaysPresent(t *testing.T) {
	t.Parallel()

	s := New(nil)
	if !reflect.DeepEqual(namesOf(s.Columns()), FixedNames()) {
		t.Fatalf("columns=%v", namesOf(s.Columns()))
	}
	if len(s.DataColumns()) != 0 {
		t.Fatalf("expected no data columns")
	}
}

func TestNew_DataColumnsOrderedAndProvenanceWins(t *testing.T) {
	t.Parallel()

	s := New([]Column{
		{Name: "name", Type: TypeString},
		{Name: SourceFile, Type: TypeTimestamp},
		{Name: "created", Type: TypeTimestamp, Required: true},
	})

	if got := namesOf(s.DataColumns()); !reflect.DeepEqual(got, []string{"name", "created"}) {
		t.Fatalf("data columns=%v", got)
	}
	if s.TypeOf(SourceFile) != TypeString {
		t.Fatalf("provenance column type was overridden")
	}
	c, _ := s.Column("created")
	if c.Required || c.Type != TypeTimestamp {
		t.Fatalf("created=%+v", c)
	}
	if s.TypeOf("unknown") != TypeString {
		t.Fatalf("unknown columns default to string")
	}
}

func TestJSONSchema(t *testing.T) {
	t.Parallel()

	s := New([]Column{{Name: "when", Type: TypeTimestamp}})
	b, err := json.Marshal(s.JSONSchema())
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		Properties map[string]struct {
			Type   any    `json:"type"`
			Format string `json:"format"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if got.Properties["when"].Format != "date-time" {
		t.Fatalf("when=%+v", got.Properties["when"])
	}
	if got.Properties[RowNumber].Type != "integer" {
		t.Fatalf("row number type=%v", got.Properties[RowNumber].Type)
	}
	if len(got.Required) != 6 {
		t.Fatalf("required=%v", got.Required)
	}
}

func namesOf(cs []Column) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Name
	}
	return out
}
