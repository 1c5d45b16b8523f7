package models

import "time"

// MediaKind is the media type of a generated artifact.
type MediaKind string

const (
	MediaMarkdown MediaKind = "markdown"
	MediaJSON     MediaKind = "json"
	MediaPDF      MediaKind = "pdf"
)

// Artifact is a generated output bound to a task.
type Artifact struct {
	ID        string    `json:"artifact_id"`
	TaskID    string    `json:"task_id"`
	Title     string    `json:"title"`
	MediaKind MediaKind `json:"media_kind"`
	Content   string    `json:"content,omitempty"`
	FilePath  string    `json:"file_path,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
