// Package models defines the server-side rows persisted in PostgreSQL.
// Reports and entries travel in their wire shape, so the repositories
// store api.Report and api.Entry directly; only devices and media carry
// server-only state and get their own types here.
package models

import (
	"time"

	"github.com/ksolodov/fieldreporter/internal/api"
)

// Device is an enrolled field device.
type Device struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Media is a media row with the server-only upload state. StorageKey is
// the object key in blob storage, set when the assembled payload is
// stored. UploadedBytes counts staged chunk bytes and is authoritative
// for the next expected chunk offset.
type Media struct {
	ID            string
	EntryID       string
	Type          string
	Size          int64
	DurationMS    int64
	StorageKey    string
	RemoteURL     string
	UploadedBytes int64
	Complete      bool
	Deleted       bool
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ToAPI converts the row to its wire representation.
func (m *Media) ToAPI() api.Media {
	return api.Media{
		ID:         m.ID,
		EntryID:    m.EntryID,
		Type:       m.Type,
		Size:       m.Size,
		DurationMS: m.DurationMS,
		RemoteURL:  m.RemoteURL,
		Deleted:    m.Deleted,
		Version:    m.Version,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

// MediaFromAPI builds a row from pushed metadata. Upload state starts
// empty; chunks arrive separately.
func MediaFromAPI(m *api.Media) *Media {
	return &Media{
		ID:         m.ID,
		EntryID:    m.EntryID,
		Type:       m.Type,
		Size:       m.Size,
		DurationMS: m.DurationMS,
		Deleted:    m.Deleted,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}
