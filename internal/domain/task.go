package domain

import (
	"fmt"
	"strings"
	"time"
)

// TaskStatus enumerates task lifecycle states.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// AspectRatio is the output frame requested from the image model.
type AspectRatio string

const (
	AspectSquare    AspectRatio = "1:1"
	AspectPortrait  AspectRatio = "3:4"
	AspectLandscape AspectRatio = "4:3"
	AspectStory     AspectRatio = "9:16"
	AspectWide      AspectRatio = "16:9"

	// DefaultAspectRatio matches the studio sidebar default.
	DefaultAspectRatio = AspectPortrait
)

var aspectRatios = []AspectRatio{AspectSquare, AspectPortrait, AspectLandscape, AspectStory, AspectWide}

// AspectRatios lists the supported ratios in display order.
func AspectRatios() []AspectRatio {
	return append([]AspectRatio(nil), aspectRatios...)
}

// ParseAspectRatio validates raw input. An empty value yields DefaultAspectRatio.
func ParseAspectRatio(raw string) (AspectRatio, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultAspectRatio, nil
	}
	for _, ar := range aspectRatios {
		if string(ar) == raw {
			return ar, nil
		}
	}
	return "", fmt.Errorf("%w: aspect ratio must be one of 1:1, 3:4, 4:3, 9:16, 16:9", ErrInvalidInput)
}

// TaskConfig is the generation parameter snapshot taken when a task is created.
type TaskConfig struct {
	AspectRatio    AspectRatio `json:"aspectRatio"`
	ReferenceImage string      `json:"referenceImage,omitempty"`
}

// Task is one prompt's generation request and its outcome.
type Task struct {
	ID        string     `json:"id"`
	Prompt    string     `json:"prompt"`
	Status    TaskStatus `json:"status"`
	ImageURL  string     `json:"imageUrl,omitempty"`
	Error     string     `json:"error,omitempty"`
	Timestamp int64      `json:"timestamp"`
	Config    TaskConfig `json:"config"`
}

// CreatedAt converts the millisecond timestamp back to a time.Time.
func (t Task) CreatedAt() time.Time {
	return time.UnixMilli(t.Timestamp)
}

// Valid checks that the result fields agree with the status.
func (t Task) Valid() bool {
	if t.ID == "" {
		return false
	}
	switch t.Status {
	case TaskStatusCompleted:
		return t.ImageURL != "" && t.Error == ""
	case TaskStatusFailed:
		return t.Error != "" && t.ImageURL == ""
	case TaskStatusPending, TaskStatusProcessing:
		return t.ImageURL == "" && t.Error == ""
	default:
		return false
	}
}

// WithStatus returns a copy of t moved to status with the matching result
// fields. The receiver is never modified.
func (t Task) WithStatus(status TaskStatus, result string) Task {
	next := t
	next.Status = status
	next.ImageURL = ""
	next.Error = ""
	switch status {
	case TaskStatusCompleted:
		next.ImageURL = result
	case TaskStatusFailed:
		next.Error = result
	}
	return next
}

// RemoveTask returns a new slice without the task identified by id. The
// boolean is false when no task matched, in which case tasks is returned as is.
func RemoveTask(tasks []Task, id string) ([]Task, bool) {
	idx := IndexTask(tasks, id)
	if idx < 0 {
		return tasks, false
	}
	out := make([]Task, 0, len(tasks)-1)
	out = append(out, tasks[:idx]...)
	out = append(out, tasks[idx+1:]...)
	return out, true
}

// IndexTask returns the position of id in tasks or -1.
func IndexTask(tasks []Task, id string) int {
	for i := range tasks {
		if tasks[i].ID == id {
			return i
		}
	}
	return -1
}
