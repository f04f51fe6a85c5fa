package agent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type schemaTool struct {
	fakeTool
	schema string
}

func (s *schemaTool) InputSchema() json.RawMessage { return json.RawMessage(s.schema) }

func TestRegistryRegisterAndLookup(t *testing.T) {
	reg := NewRegistry()
	tool := &fakeTool{name: "ls"}
	require.NoError(t, reg.Register(tool))

	assert.NotNil(t, reg.Lookup("ls"))
	assert.Nil(t, reg.Lookup("missing"))
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&fakeTool{name: "ls"}))
	err := reg.Register(&fakeTool{name: "ls"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistryRejectsNilAndUnnamedTools(t *testing.T) {
	reg := NewRegistry()
	require.Error(t, reg.Register(nil))
	require.Error(t, reg.Register(&fakeTool{name: ""}))
}

func TestRegistryRejectsInvalidSchema(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(&schemaTool{fakeTool: fakeTool{name: "bad"}, schema: `{"type": `})
	require.Error(t, err)
}

func TestRegistryValidateInputAgainstSchema(t *testing.T) {
	reg := NewRegistry()
	tool := &schemaTool{
		fakeTool: fakeTool{name: "read"},
		schema:   `{"type":"object","properties":{"path":{"type":"string"}},"required":["path"],"additionalProperties":false}`,
	}
	require.NoError(t, reg.Register(tool))

	assert.NoError(t, reg.ValidateInput("read", []byte(`{"path":"main.go"}`)))
	assert.Error(t, reg.ValidateInput("read", []byte(`{}`)), "missing required property")
	assert.Error(t, reg.ValidateInput("read", []byte(`{"path":"x","extra":1}`)), "additionalProperties violation")
	assert.Error(t, reg.ValidateInput("read", []byte(`not json`)))
	assert.Error(t, reg.ValidateInput("unknown", []byte(`{}`)))
}

func TestRegistryNamesAndCatalogAreSorted(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, reg.Register(&fakeTool{name: name}))
	}

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, reg.Names())

	catalog := reg.Catalog()
	require.Len(t, catalog, 3)
	assert.Equal(t, "alpha", catalog[0].Name)
	assert.Equal(t, "zeta", catalog[2].Name)
	assert.NotEmpty(t, catalog[0].Description)
	assert.NotEmpty(t, catalog[0].InputSchema)
}
