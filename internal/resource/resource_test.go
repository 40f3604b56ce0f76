package resource

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceKeepsUnknownFieldsInOrder(t *testing.T) {
	in := `{"zeta":1,"id":"d-1","widgets":[{"id":"w","width":2,"height":3,"config":{}}],"title":"CPU","alpha":{"b":2,"a":1},"ownerId":"u-1"}`

	var r Resource
	require.NoError(t, json.Unmarshal([]byte(in), &r))

	assert.Equal(t, "d-1", r.ID)
	assert.Equal(t, "CPU", r.Title)
	require.NotNil(t, r.OwnerID)
	assert.Equal(t, "u-1", *r.OwnerID)

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t,
		`{"id":"d-1","title":"CPU","ownerId":"u-1","zeta":1,"widgets":[{"id":"w","width":2,"height":3,"config":{}}],"alpha":{"b":2,"a":1}}`,
		string(out))
}

func TestResourceNullOwnerIsOmitted(t *testing.T) {
	var r Resource
	require.NoError(t, json.Unmarshal([]byte(`{"id":"d-1","title":"x","ownerId":null}`), &r))
	assert.Nil(t, r.OwnerID)

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "ownerId")
}

func TestResourceNumericID(t *testing.T) {
	var r Resource
	require.NoError(t, json.Unmarshal([]byte(`{"id":42,"title":"x"}`), &r))
	assert.Equal(t, "42", r.ID)
}

func TestListingNumericIDs(t *testing.T) {
	var list []Summary
	require.NoError(t, json.Unmarshal([]byte(`[{"id":7,"title":"CPU","extra":true},{"id":"d-2","title":null},{"title":"x"}]`), &list))
	assert.Equal(t, []Summary{{ID: "7", Title: "CPU"}, {ID: "d-2"}, {Title: "x"}}, list)

	var users []User
	require.NoError(t, json.Unmarshal([]byte(`[{"id":12,"email":"ann@example.com"}]`), &users))
	assert.Equal(t, []User{{ID: "12", Email: "ann@example.com"}}, users)

	assert.Error(t, json.Unmarshal([]byte(`[{"id":true,"title":"x"}]`), &list))
}

func TestResourceCloneIsIndependent(t *testing.T) {
	owner := "u-1"
	r := New("d-1", "x")
	r.OwnerID = &owner
	r.AccessRules = []AccessRule{GlobalReadWrite()}
	require.NoError(t, r.SetField("rbacTags", []string{"a"}))

	c := r.Clone()
	*c.OwnerID = "u-2"
	c.AccessRules[0].RelatedID = "changed"
	c.DeleteField("rbacTags")

	assert.Equal(t, "u-1", *r.OwnerID)
	assert.Equal(t, "", r.AccessRules[0].RelatedID)
	_, ok := r.Field("rbacTags")
	assert.True(t, ok)
}

func TestResourceWidgets(t *testing.T) {
	var r Resource
	require.NoError(t, json.Unmarshal([]byte(`{"id":"d","title":"x","widgets":[{"id":"w1","width":1,"height":2,"config":{"k":"v"}}]}`), &r))

	widgets, err := r.Widgets()
	require.NoError(t, err)
	require.Len(t, widgets, 1)
	assert.Equal(t, "w1", widgets[0].ID)
	assert.Equal(t, 2, widgets[0].Height)

	empty := New("d", "x")
	widgets, err = empty.Widgets()
	require.NoError(t, err)
	assert.Nil(t, widgets)
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"CPU", "CPU"},
		{"  CPU  ", "CPU"},
		{"cpu", "cpu"},
		{"\tCPU load\n", "CPU load"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeTitle(tt.in))
	}
}
