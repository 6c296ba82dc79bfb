package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	coreconfig "github.com/m3rciful/vcfbot/core/config"
	"github.com/m3rciful/vcfbot/core/dispatch"
	"github.com/m3rciful/vcfbot/core/state"
)

func TestRowFromEntry(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	row := RowFromEntry(dispatch.Entry{
		ID:        "b1",
		UserID:    7,
		Mode:      state.ModeRenameFiles,
		FilesIn:   3,
		FilesOut:  2,
		Failed:    1,
		Outcome:   dispatch.OutcomePartial,
		Duration:  1500 * time.Millisecond,
		CreatedAt: at,
	})

	assert.Equal(t, "rename_files", row.Mode)
	assert.Equal(t, int64(1500), row.DurationMS)
	assert.Equal(t, at.UTC(), row.CreatedAt)
	assert.Equal(t, time.UTC, row.CreatedAt.Location())
	assert.Equal(t, "partial", row.Outcome)
}

func TestRowFromEntry_DefaultsCreatedAt(t *testing.T) {
	row := RowFromEntry(dispatch.Entry{ID: "b2"})
	assert.WithinDuration(t, time.Now(), row.CreatedAt, time.Minute)
}

func TestDSNAndURL(t *testing.T) {
	cfg := coreconfig.DatabaseConfig{
		Host: "db", Port: "5432", User: "bot", Password: "p@ss", Name: "vcf", SSLMode: "disable",
	}
	assert.Equal(t, "user=bot password=p@ss host=db port=5432 dbname=vcf sslmode=disable", DSN(cfg))
	assert.Equal(t, "postgres://bot:p%40ss@db:5432/vcf?sslmode=disable", URL(cfg))
}

func TestCountApplied(t *testing.T) {
	files := []string{"000001_create_task_journal.up.sql", "000002_index.up.sql", "000003_x.up.sql"}
	assert.Equal(t, 2, countApplied(files, 1, 3))
	assert.Equal(t, 0, countApplied(files, 3, 3))
	assert.Equal(t, []string{"000002_index.up.sql"}, selectApplied(files, 1, 2))
}
