package projects

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateExtractionSchema(t *testing.T) {
	t.Run("valid schema passes", func(t *testing.T) {
		err := validateExtractionSchema([]FieldGroup{
			{Name: "pricing", Fields: []FieldDefinition{{Name: "price"}, {Name: "currency"}}},
			{Name: "specs", Fields: []FieldDefinition{{Name: "weight"}}},
		})
		assert.NoError(t, err)
	})

	t.Run("rejects blank group name", func(t *testing.T) {
		err := validateExtractionSchema([]FieldGroup{{Name: ""}})
		assert.Error(t, err)
	})

	t.Run("rejects duplicate group names", func(t *testing.T) {
		err := validateExtractionSchema([]FieldGroup{{Name: "pricing"}, {Name: "pricing"}})
		assert.Error(t, err)
	})

	t.Run("rejects duplicate field names within a group", func(t *testing.T) {
		err := validateExtractionSchema([]FieldGroup{
			{Name: "pricing", Fields: []FieldDefinition{{Name: "price"}, {Name: "price"}}},
		})
		assert.Error(t, err)
	})

	t.Run("rejects blank field name", func(t *testing.T) {
		err := validateExtractionSchema([]FieldGroup{
			{Name: "pricing", Fields: []FieldDefinition{{Name: ""}}},
		})
		assert.Error(t, err)
	})
}
