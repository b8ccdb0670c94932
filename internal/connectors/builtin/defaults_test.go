package builtin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/cityseed/internal/connectors"
	"github.com/custodia-labs/cityseed/internal/core/domain"
)

func TestRegisterDefaults(t *testing.T) {
	f := connectors.NewFactory()
	RegisterDefaults(f, nil)

	assert.Equal(t, domain.AllSourceTypes(), f.SupportedTypes())

	specs := []domain.SourceSpec{
		{ID: "a", Type: domain.SourceArchive, Config: map[string]string{"path": "/tmp/x.jsonl"}},
		{ID: "b", Type: domain.SourceBlog, Config: map[string]string{"url": "https://example.com"}},
		{ID: "d", Type: domain.SourceDirectory, Config: map[string]string{"base_url": "https://api.example.com"}},
		{ID: "f", Type: domain.SourceForum, Config: map[string]string{"base_url": "https://forum.example.com"}},
	}
	for _, spec := range specs {
		conn, err := f.Create(context.Background(), spec)
		require.NoError(t, err, spec.Type)
		assert.Equal(t, spec.Type, conn.Type())
		assert.Equal(t, spec.ID, conn.SourceID())
		assert.NoError(t, conn.Close())
	}

	_, err := f.Create(context.Background(), domain.SourceSpec{ID: "x", Type: domain.SourceBlog, Config: map[string]string{}})
	assert.Error(t, err)
}

func TestConnectorTypes_CoverRegisteredTypes(t *testing.T) {
	var ids []domain.SourceType
	for _, ct := range ConnectorTypes() {
		ids = append(ids, ct.ID)
		assert.NotEmpty(t, ct.Name)
	}
	assert.Equal(t, domain.AllSourceTypes(), ids)
}
