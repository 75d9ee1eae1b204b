package resolver

import (
	"testing"
	"time"

	"github.com/ksolodov/fieldreporter/internal/agent/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func report(id string, updated time.Time, deleted bool) *models.Report {
	return &models.Report{ID: id, Title: "r-" + id, UpdatedAt: updated, Deleted: deleted}
}

func entry(id, content string, updated time.Time, deleted bool) models.Entry {
	return models.Entry{ID: id, Content: content, UpdatedAt: updated, Deleted: deleted}
}

func TestResolveReport_LastWriteWins(t *testing.T) {
	local := report("r1", base.Add(time.Hour), false)
	remote := report("r1", base, false)

	winner, conflict := ResolveReport(local, remote)
	assert.Same(t, local, winner)
	assert.Nil(t, conflict)

	winner, conflict = ResolveReport(remote, local)
	assert.Same(t, local, winner)
	assert.Nil(t, conflict)
}

func TestResolveReport_TieGoesToRemote(t *testing.T) {
	local := report("r1", base, false)
	remote := report("r1", base, false)

	winner, conflict := ResolveReport(local, remote)
	assert.Same(t, remote, winner)
	assert.Nil(t, conflict)
}

func TestResolveReport_OneSided(t *testing.T) {
	r := report("r1", base, false)

	winner, conflict := ResolveReport(nil, r)
	assert.Same(t, r, winner)
	assert.Nil(t, conflict)

	winner, conflict = ResolveReport(r, nil)
	assert.Same(t, r, winner)
	assert.Nil(t, conflict)
}

func TestResolveReport_NewerDeleteWinsQuietly(t *testing.T) {
	edited := report("r1", base, false)
	deleted := report("r1", base.Add(time.Minute), true)

	winner, conflict := ResolveReport(deleted, edited)
	assert.Same(t, deleted, winner)
	assert.Nil(t, conflict)

	// same shape with the delete on the remote side
	winner, conflict = ResolveReport(edited, deleted)
	assert.Same(t, deleted, winner)
	assert.Nil(t, conflict)
}

func TestResolveReport_EditAfterDeleteDefersDecision(t *testing.T) {
	deleted := report("r1", base, true)
	edited := report("r1", base.Add(time.Minute), false)

	// local edit vs earlier remote delete
	winner, conflict := ResolveReport(edited, deleted)
	assert.Nil(t, winner, "a delete-versus-edit clash has no automatic winner")
	require.NotNil(t, conflict)
	assert.Contains(t, conflict.Reason, "remote deletion raced a newer local edit")

	// local delete vs newer remote edit
	winner, conflict = ResolveReport(deleted, edited)
	assert.Nil(t, winner)
	require.NotNil(t, conflict)
	assert.Contains(t, conflict.Reason, "local deletion raced a newer remote edit")
	assert.Contains(t, conflict.String(), "r1")
}

func TestResolveEntry_LastWriteWins(t *testing.T) {
	local := entry("e1", "local text", base.Add(time.Minute), false)
	remote := entry("e1", "remote text", base, false)

	winner, conflict := ResolveEntry(&local, &remote)
	assert.Equal(t, "local text", winner.Content)
	assert.Nil(t, conflict)
}

func TestMergeEntries_Union(t *testing.T) {
	local := []models.Entry{
		entry("e1", "only local", base, false),
		entry("e2", "local version", base.Add(time.Hour), false),
	}
	remote := []models.Entry{
		entry("e2", "remote version", base, false),
		entry("e3", "only remote", base, false),
	}

	merged, conflicts := MergeEntries(local, remote)
	require.Len(t, merged, 3)
	assert.Empty(t, conflicts)

	byID := map[string]string{}
	for _, e := range merged {
		byID[e.ID] = e.Content
	}
	assert.Equal(t, "only local", byID["e1"])
	assert.Equal(t, "local version", byID["e2"], "newer local edit wins")
	assert.Equal(t, "only remote", byID["e3"])
}

func TestMergeEntries_DeleteEditClashIsReported(t *testing.T) {
	local := []models.Entry{entry("e1", "", base, true)}
	remote := []models.Entry{entry("e1", "edited later", base.Add(time.Minute), false)}

	merged, conflicts := MergeEntries(local, remote)
	require.Len(t, merged, 1)
	assert.True(t, merged[0].Deleted, "the local copy stays in place while the clash is pending")

	require.Len(t, conflicts, 1)
	assert.Equal(t, "e1", conflicts[0].EntityID)
	assert.Contains(t, conflicts[0].Reason, "local deletion raced a newer remote edit")
}

func TestMergeEntries_BothEmpty(t *testing.T) {
	merged, conflicts := MergeEntries(nil, nil)
	assert.Empty(t, merged)
	assert.Empty(t, conflicts)
}
