// internal/model/catalog.go
// Package model defines the data structures used throughout the catalog service.
// These structures represent batches, their folder trees, content items and live classes.
package model

import (
	"fmt"
	"strings"
	"time"
)

// ContentKind classifies a content item.
type ContentKind string

const (
	KindVideo    ContentKind = "video"
	KindPDF      ContentKind = "pdf"
	KindDocument ContentKind = "document"
)

// PlayerRouting selects which player a video content item opens in.
type PlayerRouting string

const (
	// RoutingInternal plays the video in the embedded playback engine.
	RoutingInternal PlayerRouting = "internal"
	// RoutingAlternatePlayer opens the video in the external alternate player.
	RoutingAlternatePlayer PlayerRouting = "edumaster2"
)

// PlaybackType tags a playback session.
type PlaybackType string

const (
	PlaybackLecture PlaybackType = "lecture"
	PlaybackLive    PlaybackType = "live"
)

// Content is a leaf item in a batch's folder tree.
type Content struct {
	ID         string        `json:"id" db:"id"`                            // Unique content identifier
	Name       string        `json:"name" db:"name"`                        // Display name
	Type       ContentKind   `json:"type" db:"type"`                        // video, pdf, document, ...
	URL        string        `json:"url" db:"url"`                          // Source URL (http(s) or s3://bucket/key)
	PlayerType PlayerRouting `json:"playerType,omitempty" db:"player_type"` // Player routing tag
	CreatedAt  time.Time     `json:"createdAt" db:"created_at"`             // When the content was created
}

// Folder is a named node of the content tree.
// Child slices may be nil when the upstream record omitted them; callers treat that as empty.
type Folder struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	SubFolders []Folder  `json:"subFolders,omitempty" db:"sub_folders"`
	Content    []Content `json:"content,omitempty" db:"content"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// Batch is a course offering with its own folder tree.
type Batch struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description,omitempty" db:"description"`
	Folders     []Folder  `json:"folders" db:"folders"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// LiveClass is a scheduled live session fed to the phase clock.
type LiveClass struct {
	ID                  string     `json:"id" db:"id"`
	BatchID             string     `json:"batchId" db:"batch_id"`
	Title               string     `json:"title" db:"title"`
	Description         string     `json:"description,omitempty" db:"description"`
	Thumbnail           string     `json:"thumbnail,omitempty" db:"thumbnail"`
	ScheduledAt         time.Time  `json:"scheduledAt" db:"scheduled_at"`
	EndTime             *time.Time `json:"endTime,omitempty" db:"end_time"`
	IsLive              bool       `json:"isLive" db:"is_live"`
	PlayerType          string     `json:"playerType,omitempty" db:"player_type"`
	StreamURL           string     `json:"streamUrl,omitempty" db:"stream_url"`
	ExternalMeetingLink string     `json:"externalMeetingLink,omitempty" db:"external_meeting_link"`
}

// GoLiveSession is a screen-share style live session.
type GoLiveSession struct {
	ID                  string    `json:"id" db:"id"`
	Title               string    `json:"title" db:"title"`
	StreamURL           string    `json:"streamUrl,omitempty" db:"stream_url"`
	ExternalMeetingLink string    `json:"externalMeetingLink,omitempty" db:"external_meeting_link"`
	IsActive            bool      `json:"isActive" db:"is_active"`
	StartedAt           time.Time `json:"startedAt" db:"started_at"`
}

// Children returns the folder's subfolders, never nil.
func (f Folder) Children() []Folder {
	if f.SubFolders == nil {
		return []Folder{}
	}
	return f.SubFolders
}

// Items returns the folder's content items, never nil.
func (f Folder) Items() []Content {
	if f.Content == nil {
		return []Content{}
	}
	return f.Content
}

// Description renders the tile subtitle of a folder, e.g. "3 items • 2024-05-01".
func (f Folder) Description() string {
	return fmt.Sprintf("%d items • %s", len(f.SubFolders)+len(f.Content), f.CreatedAt.Format(time.DateOnly))
}

// Description renders the tile subtitle of a content item, e.g. "PDF • 2024-05-01".
func (c Content) Description() string {
	return fmt.Sprintf("%s • %s", strings.ToUpper(string(c.Type)), c.CreatedAt.Format(time.DateOnly))
}

// IsVideo reports whether the content is a video.
func (c Content) IsVideo() bool {
	return c.Type == KindVideo
}

// maxFolderDepth bounds recursive searches in case upstream data contains a cycle.
const maxFolderDepth = 64

// FindFolder searches folders depth-first for the folder with the given id.
func FindFolder(folders []Folder, id string) (*Folder, bool) {
	return findFolder(folders, id, 0)
}

func findFolder(folders []Folder, id string, depth int) (*Folder, bool) {
	if depth > maxFolderDepth {
		return nil, false
	}
	for i := range folders {
		if folders[i].ID == id {
			return &folders[i], true
		}
		if f, ok := findFolder(folders[i].SubFolders, id, depth+1); ok {
			return f, true
		}
	}
	return nil, false
}

// ContentStats counts a folder's direct content by type and player routing.
type ContentStats struct {
	Videos          int `json:"videos"`
	PDFs            int `json:"pdfs"`
	Documents       int `json:"documents"`
	InternalPlayer  int `json:"internalPlayer"`
	AlternatePlayer int `json:"alternatePlayer"`
}

// Stats summarises the folder's direct content.
func (f Folder) Stats() ContentStats {
	var s ContentStats
	for _, c := range f.Content {
		switch c.Type {
		case KindVideo:
			s.Videos++
			if c.PlayerType == RoutingAlternatePlayer {
				s.AlternatePlayer++
			} else {
				s.InternalPlayer++
			}
		case KindPDF:
			s.PDFs++
		case KindDocument:
			s.Documents++
		}
	}
	return s
}
