package app

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/ksolodov/fieldreporter/internal/agent/models"
)

func (a *App) status() string {
	mode := "offline"
	if a.monitor.Online() {
		mode = "online"
	}
	n, err := a.store.Queue.PendingCount(context.Background())
	if err != nil {
		return fmt.Sprintf("(%s)", mode)
	}
	return fmt.Sprintf("(%s, %d queued)", mode, n)
}

// NewReport creates a report and queues it for upload.
func (a *App) NewReport(ctx context.Context) error {
	title, err := GetSimpleText(a.reader, "Report title", os.Stdout)
	if err != nil {
		return err
	}
	notes, err := GetSimpleText(a.reader, "Notes (optional)", os.Stdout)
	if err != nil {
		return err
	}

	r := &models.Report{ID: uuid.NewString(), Title: title, Notes: notes}
	if err := a.store.SaveReport(ctx, r); err != nil {
		printlnFn("Error saving report:", err)
		return err
	}
	printlnFn("Report created:", r.ID)
	a.worker.Wake()
	return nil
}

// AddNote captures a text entry under a report.
func (a *App) AddNote(ctx context.Context) error {
	reportID, err := GetSimpleText(a.reader, "Report id", os.Stdout)
	if err != nil {
		return err
	}
	content, err := GetMultiline(a.reader, "Note text", os.Stdout)
	if err != nil {
		return err
	}

	e := &models.Entry{
		ID:       uuid.NewString(),
		ReportID: reportID,
		Type:     models.EntryTypeNote,
		Content:  content,
	}
	if err := a.store.SaveEntry(ctx, e, nil); err != nil {
		printlnFn("Error saving note:", err)
		return err
	}
	printlnFn("Note saved:", e.ID)
	a.worker.Wake()
	return nil
}

// AttachFile imports a file from disk as a media entry.
func (a *App) AttachFile(ctx context.Context) error {
	reportID, err := GetSimpleText(a.reader, "Report id", os.Stdout)
	if err != nil {
		return err
	}
	path, err := GetSimpleText(a.reader, "Path to file", os.Stdout)
	if err != nil {
		return err
	}
	kind, err := GetSimpleText(a.reader, "Type (photo/video/audio/scan)", os.Stdout)
	if err != nil {
		return err
	}

	entryType := models.EntryType(kind)
	if !entryType.HasMedia() {
		printlnFn("Unsupported media type:", kind)
		return fmt.Errorf("unsupported media type %q", kind)
	}

	res, err := a.importer.Import(path, entryType, time.Time{})
	if err != nil {
		printlnFn("Error importing file:", err)
		return err
	}

	e := &models.Entry{
		ID:         uuid.NewString(),
		ReportID:   reportID,
		Type:       res.Type,
		CapturedAt: res.CapturedAt,
		Latitude:   res.Latitude,
		Longitude:  res.Longitude,
	}
	m := &models.Media{
		ID:         uuid.NewString(),
		Type:       res.Type,
		LocalPath:  res.Path,
		Size:       res.Size,
		DurationMS: res.DurationMS,
	}
	if err := a.store.SaveEntry(ctx, e, m); err != nil {
		printlnFn("Error saving entry:", err)
		return err
	}
	printlnFn("Attached:", e.ID, fmt.Sprintf("(%d bytes)", res.Size))
	a.worker.Wake()
	return nil
}

// List prints all reports.
func (a *App) List(ctx context.Context) error {
	reports, err := a.store.Reports.GetAll(ctx)
	if err != nil {
		printlnFn("Error listing reports:", err)
		return err
	}
	if len(reports) == 0 {
		printlnFn("No reports yet.")
		return nil
	}
	for _, r := range reports {
		state := "synced"
		if r.SyncPending {
			state = "pending"
		}
		printlnFn(fmt.Sprintf("%s  %-30s  %s", r.ID, r.Title, state))
	}
	return nil
}

// Show prints one report with its entries.
func (a *App) Show(ctx context.Context) error {
	id, err := GetSimpleText(a.reader, "Report id", os.Stdout)
	if err != nil {
		return err
	}

	r, err := a.store.Reports.GetByID(ctx, id)
	if err != nil {
		printlnFn("Error:", err)
		return err
	}
	printlnFn(fmt.Sprintf("%s (created %s)", r.Title, r.CreatedAt.Format(time.RFC3339)))
	if r.Notes != "" {
		printlnFn(r.Notes)
	}

	entries, err := a.store.Entries.GetByReport(ctx, id)
	if err != nil {
		printlnFn("Error listing entries:", err)
		return err
	}
	for _, e := range entries {
		line := fmt.Sprintf("  [%s] %s %s", e.Type, e.ID, e.CapturedAt.Format("2006-01-02 15:04"))
		if e.Type.HasMedia() {
			if m, merr := a.store.Media.GetByEntryID(ctx, e.ID); merr == nil {
				line += fmt.Sprintf(" (%s %d%%)", m.Status, m.Progress)
			}
		}
		printlnFn(line)
	}
	return nil
}

// Delete tombstones an entry.
func (a *App) Delete(ctx context.Context) error {
	id, err := GetSimpleText(a.reader, "Entry id", os.Stdout)
	if err != nil {
		return err
	}
	if err := a.store.DeleteEntry(ctx, id); err != nil {
		printlnFn("Error deleting entry:", err)
		return err
	}
	printlnFn("Deleted:", id)
	a.worker.Wake()
	return nil
}

// Sync pulls remote changes and kicks the uploader.
func (a *App) Sync(ctx context.Context) error {
	conflicts, err := a.syncer.Pull(ctx)
	if err != nil {
		printlnFn("Sync failed:", err)
		return err
	}
	for _, c := range conflicts {
		printlnFn("Conflict needs a decision:", c.String())
	}
	if len(conflicts) > 0 {
		printlnFn("Run 'conflicts' to review and 'resolve <id> local|remote' to decide.")
	}
	a.worker.Wake()
	printlnFn("Sync requested.")
	return nil
}

// Conflicts lists parked clashes waiting for a decision.
func (a *App) Conflicts(ctx context.Context) error {
	recs, err := a.store.Conflicts.List(ctx)
	if err != nil {
		printlnFn("Error:", err)
		return err
	}
	if len(recs) == 0 {
		printlnFn("No conflicts waiting.")
		return nil
	}
	for _, c := range recs {
		printlnFn(fmt.Sprintf("#%d %s %s: %s", c.ID, c.EntityType, c.EntityID, c.Reason))
	}
	return nil
}

// Resolve decides a parked clash: resolve <id> local|remote.
func (a *App) Resolve(ctx context.Context, args []string) error {
	if len(args) != 2 || (args[1] != "local" && args[1] != "remote") {
		printlnFn("Usage: resolve <conflict-id> local|remote")
		return fmt.Errorf("bad resolve arguments")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		printlnFn("Not a conflict id:", args[0])
		return err
	}

	if err := a.syncer.ResolveConflict(ctx, id, args[1] == "local"); err != nil {
		printlnFn("Error:", err)
		return err
	}
	printlnFn("Resolved, kept", args[1], "side.")
	a.worker.Wake()
	return nil
}

// Queue prints the live queue depth.
func (a *App) Queue(ctx context.Context) error {
	n, err := a.store.Queue.PendingCount(ctx)
	if err != nil {
		printlnFn("Error:", err)
		return err
	}
	printlnFn(fmt.Sprintf("%d item(s) waiting for upload", n))
	return nil
}

// Failed lists dead-letter items.
func (a *App) Failed(ctx context.Context) error {
	items, err := a.store.Queue.DeadLetters(ctx)
	if err != nil {
		printlnFn("Error:", err)
		return err
	}
	if len(items) == 0 {
		printlnFn("Nothing needs attention.")
		return nil
	}
	for _, it := range items {
		printlnFn(fmt.Sprintf("#%d %s %s %s: %s", it.ID, it.EntityType, it.EntityID, it.Action, it.LastError))
	}
	return nil
}

// Retry puts a dead-letter item back in the queue.
func (a *App) Retry(ctx context.Context, args []string) error {
	id, err := parseQueueID(args, "retry")
	if err != nil {
		return err
	}
	if err := a.store.RetryDeadLetter(ctx, id); err != nil {
		printlnFn("Error:", err)
		return err
	}
	printlnFn("Requeued:", id)
	a.worker.Wake()
	return nil
}

// Cancel drops a queued item without uploading it.
func (a *App) Cancel(ctx context.Context, args []string) error {
	id, err := parseQueueID(args, "cancel")
	if err != nil {
		return err
	}
	if err := a.store.CancelQueueItem(ctx, id); err != nil {
		printlnFn("Error:", err)
		return err
	}
	printlnFn("Cancelled:", id)
	return nil
}

func parseQueueID(args []string, cmd string) (int64, error) {
	if len(args) == 0 {
		printlnFn(fmt.Sprintf("Usage: %s <queue-id>", cmd))
		return 0, fmt.Errorf("missing queue id")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		printlnFn("Not a queue id:", args[0])
		return 0, err
	}
	return id, nil
}
