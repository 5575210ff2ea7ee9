package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"aish/internal/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListCommandRendersTable(t *testing.T) {
	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]*api.CIEntry{
			{Name: "numa", Type: api.CITypeGreek, MessageFormat: api.FormatRhetorSocket, DefinedBy: api.DefinedBySystem},
		})
	})

	c := newListCmd()
	var out bytes.Buffer
	c.SetOut(&out)
	c.SetArgs([]string{})
	require.NoError(t, c.Execute())
	assert.Contains(t, out.String(), "numa")
	assert.Contains(t, out.String(), "greek")
}

func TestListCommandJSONOutput(t *testing.T) {
	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]*api.CIEntry{{Name: "numa", Type: api.CITypeGreek}})
	})

	c := newListCmd()
	var out bytes.Buffer
	c.SetOut(&out)
	c.SetArgs([]string{"--json"})
	require.NoError(t, c.Execute())

	var decoded []*api.CIEntry
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "numa", decoded[0].Name)
}

func TestListCommandEmptyRegistry(t *testing.T) {
	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]*api.CIEntry{})
	})

	c := newListCmd()
	var out bytes.Buffer
	c.SetOut(&out)
	c.SetArgs([]string{})
	require.NoError(t, c.Execute())
	assert.Contains(t, out.String(), "No CIs registered")
}
