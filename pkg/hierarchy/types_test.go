package hierarchy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntity_JSONShape(t *testing.T) {
	data, err := json.Marshal(Entity{ID: "c1", Name: "Acme", Type: TypeCompany})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"c1","name":"Acme","type":"company","parentId":null,"role":null,"permissions":[]}`, string(data))

	var e Entity
	require.NoError(t, json.Unmarshal([]byte(`{
		"id":"e1","name":"Eve","type":"employee","parentId":"t1","role":"Dev",
		"permissions":["perm_1"],
		"metadata":{"email":"eve@example.com","enabled":true,"level":3,"manager":null}
	}`), &e))
	assert.Equal(t, "t1", e.ParentID)
	assert.Equal(t, "Dev", e.Role)
	assert.Equal(t, []string{"email", "enabled", "level"}, e.Metadata.Keys())

	enabled, ok := e.Metadata["enabled"].Boolean()
	assert.True(t, ok)
	assert.True(t, enabled)
	level, ok := e.Metadata["level"].Num()
	assert.True(t, ok)
	assert.Equal(t, 3.0, level)
}

func TestMetadata_RejectsNestedValues(t *testing.T) {
	var m Metadata
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"groups":["a","b"]}`), &m), ErrValidation)
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"address":{"city":"x"}}`), &m), ErrValidation)
	assert.Error(t, json.Unmarshal([]byte(`["a"]`), &m))
}

func TestEntity_CloneIsDeep(t *testing.T) {
	e := Entity{
		ID: "e1", Name: "E", Type: TypeEmployee,
		Permissions: []string{"perm_1"},
		Metadata:    Metadata{"email": String("e@example.com")},
	}
	c := e.Clone()
	c.Permissions[0] = "perm_9"
	c.Metadata["email"] = String("other")

	assert.Equal(t, "perm_1", e.Permissions[0])
	email, _ := e.Metadata["email"].Str()
	assert.Equal(t, "e@example.com", email)
}

func TestParseEntityType(t *testing.T) {
	got, err := ParseEntityType(" Team ")
	require.NoError(t, err)
	assert.Equal(t, TypeTeam, got)
	assert.Equal(t, 3, got.Rank())

	_, err = ParseEntityType("division")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestTreeHelpers(t *testing.T) {
	entities := []Entity{
		{ID: "c", Name: "C", Type: TypeCompany},
		{ID: "d", Name: "D", Type: TypeDepartment, ParentID: "c"},
		{ID: "t", Name: "T", Type: TypeTeam, ParentID: "d"},
		{ID: "e", Name: "E", Type: TypeEmployee, ParentID: "t"},
	}

	assert.ElementsMatch(t, []string{"d", "t", "e"}, Descendants(entities, "c"))
	assert.Empty(t, Descendants(entities, "e"))
	assert.Empty(t, Descendants(entities, "missing"))

	var names []string
	for _, a := range Ancestors(entities, "e") {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{"T", "D", "C"}, names)
}
