package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const courtsYAML = `
courts:
  - name: TJSP
    api_type: esaj
    base_url: https://esaj.tjsp.jus.br
    api_key: ${TJSP_API_KEY}
  - name: TRF4
    api_type: eproc
    base_url: https://eproc.trf4.jus.br
    username: office
    password: secret
    active: false
`

func TestSeedCourts(t *testing.T) {
	db := newTestDB(t)
	t.Setenv("TJSP_API_KEY", "key-123")

	path := filepath.Join(t.TempDir(), "courts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(courtsYAML), 0644))

	n, err := SeedCourts(db, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var tjsp Court
	require.NoError(t, db.Where("name = ?", "TJSP").First(&tjsp).Error)
	assert.Equal(t, APITypeESAJ, tjsp.APIType)
	assert.Equal(t, "key-123", tjsp.APIKey)
	assert.True(t, tjsp.Active)

	var trf4 Court
	require.NoError(t, db.Where("name = ?", "TRF4").First(&trf4).Error)
	assert.False(t, trf4.Active)

	// Seeding again updates in place.
	_, err = SeedCourts(db, path)
	require.NoError(t, err)
	var count int64
	db.Model(&Court{}).Count(&count)
	assert.Equal(t, int64(2), count)
}

func TestSeedCourtsRequiresName(t *testing.T) {
	db := newTestDB(t)

	path := filepath.Join(t.TempDir(), "courts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("courts:\n  - api_type: pje\n"), 0644))

	_, err := SeedCourts(db, path)
	assert.Error(t, err)
}
