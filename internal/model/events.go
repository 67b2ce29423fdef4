package model

import "time"

// NavigationEvent records one applied navigation transition.
type NavigationEvent struct {
	SessionID   string    `json:"sessionId"`
	BatchID     string    `json:"batchId"`
	Action      string    `json:"action"` // enter, back, exit
	FolderID    string    `json:"folderId,omitempty"`
	ActiveIndex int       `json:"activeIndex"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// DispatchEvent records a content selection and the route it took.
type DispatchEvent struct {
	SessionID  string    `json:"sessionId"`
	ContentID  string    `json:"contentId"`
	Route      string    `json:"route"` // external, player
	OccurredAt time.Time `json:"occurredAt"`
}

// PlaybackEvent records a playback session phase change.
type PlaybackEvent struct {
	SessionID  string       `json:"sessionId"`
	Type       PlaybackType `json:"type"`
	Phase      string       `json:"phase"`
	Position   float64      `json:"position"`
	Error      string       `json:"error,omitempty"`
	OccurredAt time.Time    `json:"occurredAt"`
}

// LivePhaseEvent records a live class moving to a new phase.
type LivePhaseEvent struct {
	ClassID    string    `json:"classId"`
	BatchID    string    `json:"batchId,omitempty"`
	From       string    `json:"from"`
	Phase      string    `json:"phase"` // upcoming, ready, ended, live
	OccurredAt time.Time `json:"occurredAt"`
}
