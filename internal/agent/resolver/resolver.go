// Package resolver decides the winner when a record changed both
// locally and on the server. Scalars resolve last-write-wins on
// UpdatedAt; entry sets merge as a union. A deletion racing a newer
// edit is never decided here: resolution defers to an explicit user
// choice and the clash is reported as pending.
package resolver

import (
	"fmt"

	"github.com/ksolodov/fieldreporter/internal/agent/models"
	"github.com/ksolodov/fieldreporter/internal/api"
)

// Conflict describes a clash the resolver refused to decide. The record
// stays as it was; both sides must be parked until the user picks one.
type Conflict struct {
	EntityType api.EntityType
	EntityID   string
	Reason     string
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s %s: %s", c.EntityType, c.EntityID, c.Reason)
}

// ResolveReport picks between a locally modified report and the server
// copy. Either side may be nil when only one has the record. A non-nil
// conflict means no winner was picked.
func ResolveReport(local, remote *models.Report) (*models.Report, *Conflict) {
	if local == nil {
		return remote, nil
	}
	if remote == nil {
		return local, nil
	}

	if local.Deleted != remote.Deleted {
		return resolveDeleteEdit(local, remote, api.EntityReport, local.ID,
			local.Deleted, local.UpdatedAt.After(remote.UpdatedAt))
	}

	if local.UpdatedAt.After(remote.UpdatedAt) {
		return local, nil
	}
	return remote, nil
}

// ResolveEntry picks between a locally modified entry and the server
// copy.
func ResolveEntry(local, remote *models.Entry) (*models.Entry, *Conflict) {
	if local == nil {
		return remote, nil
	}
	if remote == nil {
		return local, nil
	}

	if local.Deleted != remote.Deleted {
		return resolveDeleteEdit(local, remote, api.EntityEntry, local.ID,
			local.Deleted, local.UpdatedAt.After(remote.UpdatedAt))
	}

	if local.UpdatedAt.After(remote.UpdatedAt) {
		return local, nil
	}
	return remote, nil
}

// resolveDeleteEdit applies the delete-versus-edit rule: a deletion only
// wins when it is the newer change. An edit made after the delete is a
// structural clash; no winner is returned and the decision is the
// user's.
func resolveDeleteEdit[T any](local, remote T, entityType api.EntityType, id string, localDeleted, localNewer bool) (T, *Conflict) {
	if localNewer && localDeleted {
		return local, nil
	}
	if !localNewer && !localDeleted {
		return remote, nil
	}

	var none T
	reason := "local deletion raced a newer remote edit"
	if localNewer {
		reason = "remote deletion raced a newer local edit"
	}
	return none, &Conflict{EntityType: entityType, EntityID: id, Reason: reason}
}

// MergeEntries unions the local and remote entry sets for one report.
// Entries present on both sides resolve per entry; one-sided entries
// pass through untouched. A deferred clash keeps the local copy in the
// merged view and is reported alongside.
func MergeEntries(local, remote []models.Entry) ([]models.Entry, []Conflict) {
	byID := make(map[string]*models.Entry, len(local))
	order := make([]string, 0, len(local)+len(remote))

	for i := range local {
		e := local[i]
		byID[e.ID] = &e
		order = append(order, e.ID)
	}

	var conflicts []Conflict
	for i := range remote {
		r := remote[i]
		l, seen := byID[r.ID]
		if !seen {
			byID[r.ID] = &r
			order = append(order, r.ID)
			continue
		}
		winner, conflict := ResolveEntry(l, &r)
		if conflict != nil {
			conflicts = append(conflicts, *conflict)
			continue
		}
		byID[r.ID] = winner
	}

	merged := make([]models.Entry, 0, len(order))
	for _, id := range order {
		merged = append(merged, *byID[id])
	}
	return merged, conflicts
}
