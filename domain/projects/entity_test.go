package projects

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFieldGroup_FieldNamesAndHasField(t *testing.T) {
	g := FieldGroup{
		Name: "pricing",
		Fields: []FieldDefinition{
			{Name: "price", Type: FieldTypeFloat},
			{Name: "currency", Type: FieldTypeEnum, EnumValues: []string{"USD", "EUR"}},
		},
	}

	assert.Equal(t, []string{"price", "currency"}, g.FieldNames())
	assert.True(t, g.HasField("price"))
	assert.False(t, g.HasField("weight"))
}

func TestProject_FindFieldGroup(t *testing.T) {
	p := &Project{
		ExtractionSchema: []FieldGroup{
			{Name: "pricing"},
			{Name: "specs"},
		},
	}

	g, ok := p.FindFieldGroup("specs")
	assert.True(t, ok)
	assert.Equal(t, "specs", g.Name)

	_, ok = p.FindFieldGroup("missing")
	assert.False(t, ok)
}

func TestProject_HasEntityType(t *testing.T) {
	p := &Project{EntityTypes: []string{"Person", "Organization"}}

	assert.True(t, p.HasEntityType("Person"))
	assert.False(t, p.HasEntityType("Location"))
}
