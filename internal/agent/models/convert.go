package models

import "github.com/ksolodov/fieldreporter/internal/api"

// ToAPI converts an entry to its wire representation.
func (e *Entry) ToAPI() *api.Entry {
	return &api.Entry{
		ID:         e.ID,
		ReportID:   e.ReportID,
		Type:       string(e.Type),
		Content:    e.Content,
		Latitude:   e.Latitude,
		Longitude:  e.Longitude,
		Deleted:    e.Deleted,
		Version:    e.RemoteVersion,
		CapturedAt: e.CapturedAt,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}
}

// EntryFromAPI converts a wire entry into the local model. The result is
// not flagged SyncPending; remote state is authoritative by definition.
func EntryFromAPI(in *api.Entry) *Entry {
	return &Entry{
		ID:            in.ID,
		ReportID:      in.ReportID,
		Type:          EntryType(in.Type),
		Content:       in.Content,
		Latitude:      in.Latitude,
		Longitude:     in.Longitude,
		Deleted:       in.Deleted,
		RemoteVersion: in.Version,
		CapturedAt:    in.CapturedAt,
		CreatedAt:     in.CreatedAt,
		UpdatedAt:     in.UpdatedAt,
	}
}

// ToAPI converts a report to its wire representation.
func (r *Report) ToAPI() *api.Report {
	return &api.Report{
		ID:        r.ID,
		Title:     r.Title,
		Notes:     r.Notes,
		Deleted:   r.Deleted,
		Version:   r.RemoteVersion,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// ReportFromAPI converts a wire report into the local model.
func ReportFromAPI(in *api.Report) *Report {
	return &Report{
		ID:            in.ID,
		Title:         in.Title,
		Notes:         in.Notes,
		Deleted:       in.Deleted,
		RemoteVersion: in.Version,
		CreatedAt:     in.CreatedAt,
		UpdatedAt:     in.UpdatedAt,
	}
}

// ToAPI converts a media record to its wire representation. LocalPath
// and upload progress stay agent-side.
func (m *Media) ToAPI() *api.Media {
	return &api.Media{
		ID:         m.ID,
		EntryID:    m.EntryID,
		Type:       string(m.Type),
		Size:       m.Size,
		DurationMS: m.DurationMS,
		RemoteURL:  m.RemoteURL,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}
