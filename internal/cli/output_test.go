package cli

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/projsync/internal/models"
	"github.com/dmitrijs2005/projsync/internal/project"
	"github.com/dmitrijs2005/projsync/internal/syncer"
)

func TestGetSimpleText(t *testing.T) {
	var w bytes.Buffer
	got, err := getSimpleText(bufio.NewReader(strings.NewReader("  migrate \n")), "Choose", &w)
	require.NoError(t, err)
	assert.Equal(t, "migrate", got)
	assert.Equal(t, "Choose\n> ", w.String())

	got, err = getSimpleText(bufio.NewReader(strings.NewReader("skip")), "Choose", &w)
	require.NoError(t, err)
	assert.Equal(t, "skip", got)

	_, err = getSimpleText(bufio.NewReader(strings.NewReader("")), "Choose", &w)
	require.Error(t, err)
}

func TestFormatOutcome(t *testing.T) {
	assert.Equal(t, "uploaded         P1 (Acme) files=3",
		formatOutcome(syncer.Outcome{ProjectID: "P1", Name: "Acme", Action: syncer.ActionUploaded, Files: 3}))

	got := formatOutcome(syncer.Outcome{ProjectID: "P1", Action: syncer.ActionFailed, Err: errors.New("boom")})
	assert.True(t, strings.HasSuffix(got, ": boom"), got)

	got = formatOutcome(syncer.Outcome{ProjectID: "P1", Action: syncer.ActionMigrated, NewID: "P2"})
	assert.Contains(t, got, "new_id=P2")
}

func TestFormatEntry(t *testing.T) {
	e := models.RegistryEntry{ID: "P1", Name: "Acme", UpdatedTS: 0, CloudSync: false, Deleted: true}
	got := formatEntry(e)
	assert.Contains(t, got, "1970-01-01T00:00:00Z")
	assert.True(t, strings.HasSuffix(got, "[local,deleted]"), got)
}

func TestFormatEvent(t *testing.T) {
	ev := models.SyncEvent{
		Operation: "push", Action: "merged", ProjectID: "P1", ProjectName: "Acme",
		Detail: "hosts +1", OccurredAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	got := formatEvent(ev)
	assert.True(t, strings.HasPrefix(got, "2026-01-02T03:04:05Z"), got)
	assert.True(t, strings.HasSuffix(got, "P1 (Acme): hosts +1"), got)
}

func TestFormatEvidence(t *testing.T) {
	assert.Equal(t, "/r/P1/a.txt", formatEvidence(project.EvidenceFile{Rel: "P1/a.txt", Path: "/r/P1/a.txt", Present: true}))
	assert.Equal(t, "/r/P1/b.txt (missing)", formatEvidence(project.EvidenceFile{Rel: "P1/b.txt", Path: "/r/P1/b.txt"}))
}
