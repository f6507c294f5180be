package db

import (
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voiceintake/intake/migrations"
)

func versions(migs []Migration) []int {
	out := make([]int, len(migs))
	for i, m := range migs {
		out[i] = m.Version
	}
	return out
}

func TestLoad_SortsByVersion(t *testing.T) {
	src := fstest.MapFS{
		"010_exports.sql":    {Data: []byte("SELECT 10;")},
		"002_recordings.sql": {Data: []byte("SELECT 2;")},
		"001_intake.sql":     {Data: []byte("CREATE TABLE patients (user_id TEXT PRIMARY KEY);")},
	}

	got, err := NewMigrator(nil, src).Load()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 10}, versions(got))
	assert.Equal(t, "001_intake.sql", got[0].Name)
	assert.Contains(t, got[0].SQL, "CREATE TABLE patients")
}

func TestLoad_SkipsUnversionedFiles(t *testing.T) {
	src := fstest.MapFS{
		"001_intake.sql":      {Data: []byte("SELECT 1;")},
		"readme.sql":          {Data: []byte("-- no version")},
		"abc_invalid.sql":     {Data: []byte("-- non-numeric prefix")},
		"notes.txt":           {Data: []byte("not sql")},
		"archive/003_old.sql": {Data: []byte("SELECT 3;")},
	}

	got, err := NewMigrator(nil, src).Load()
	require.NoError(t, err)
	assert.Equal(t, []int{1}, versions(got))
}

func TestLoad_DuplicateVersion(t *testing.T) {
	src := fstest.MapFS{
		"001_intake.sql":  {Data: []byte("SELECT 1;")},
		"001_patches.sql": {Data: []byte("SELECT 1;")},
	}
	_, err := NewMigrator(nil, src).Load()
	assert.ErrorContains(t, err, "share version 1")
}

func TestLoad_Empty(t *testing.T) {
	got, err := NewMigrator(nil, fstest.MapFS{}).Load()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoad_EmbeddedSchema(t *testing.T) {
	got, err := NewMigrator(nil, migrations.FS).Load()
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "001_intake.sql", got[0].Name)
	for _, table := range []string{"patients", "vhi_assessments", "voice_recordings"} {
		assert.Contains(t, got[0].SQL, table)
	}
}

func TestPendingAndStatuses(t *testing.T) {
	migs := []Migration{
		{Version: 1, Name: "001_intake.sql"},
		{Version: 2, Name: "002_recordings.sql"},
		{Version: 3, Name: "003_exports.sql"},
	}
	appliedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	applied := map[int]time.Time{1: appliedAt}

	assert.Equal(t, []int{2, 3}, versions(pending(migs, applied)))

	st := statuses(migs, applied)
	require.Len(t, st, 3)
	assert.True(t, st[0].Applied)
	require.NotNil(t, st[0].AppliedAt)
	assert.True(t, st[0].AppliedAt.Equal(appliedAt))
	assert.False(t, st[1].Applied)
	assert.Nil(t, st[1].AppliedAt)
}

func TestQuoteSchema(t *testing.T) {
	assert.Equal(t, `"public"`, quoteSchema(""))
	assert.Equal(t, `"intake""; DROP"`, quoteSchema(`intake"; DROP`))
}
