// Package task defines the task record, its field constraints, and the
// checksum calculator used for change detection.
package task

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusBlocked    Status = "blocked"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusBlocked, StatusCancelled:
		return true
	}
	return false
}

// Priority is the urgency of a task.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Rank returns the severity order used for priority sorting:
// low=0, medium=1, high=2, critical=3. Unknown priorities rank lowest.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityMedium:
		return 1
	case PriorityHigh:
		return 2
	case PriorityCritical:
		return 3
	}
	return 0
}

// Category is the work classification of a task.
type Category string

const (
	CategoryDevelopment   Category = "development"
	CategoryTesting       Category = "testing"
	CategoryDocumentation Category = "documentation"
	CategoryDeployment    Category = "deployment"
	CategoryBugfix        Category = "bugfix"
	CategoryFeature       Category = "feature"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryDevelopment, CategoryTesting, CategoryDocumentation,
		CategoryDeployment, CategoryBugfix, CategoryFeature:
		return true
	}
	return false
}

// Field constraints.
const (
	TitleMinLen       = 3
	TitleMaxLen       = 200
	DescriptionMaxLen = 2000
	AssigneeMaxLen    = 100
	MaxTags           = 10
	MaxHours          = 1000.0
)

// Task is a unit of work record. IDs are assigned by the store, start at 1,
// and are never reused. Pointer fields are null until first set.
type Task struct {
	ID             int64      `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Status         Status     `json:"status"`
	Priority       Priority   `json:"priority"`
	Category       Category   `json:"category"`
	Assignee       string     `json:"assignee,omitempty"`
	EstimatedHours *float64   `json:"estimated_hours"`
	ActualHours    *float64   `json:"actual_hours"`
	Tags           []string   `json:"tags"`
	Dependencies   []int64    `json:"dependencies"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at"`
	CompletedAt    *time.Time `json:"completed_at"`
	Checksum       string     `json:"checksum"`
}

// Clone returns a deep copy of t. Store reads hand out clones so callers
// never alias live records.
func (t *Task) Clone() *Task {
	c := *t
	if t.EstimatedHours != nil {
		v := *t.EstimatedHours
		c.EstimatedHours = &v
	}
	if t.ActualHours != nil {
		v := *t.ActualHours
		c.ActualHours = &v
	}
	if t.UpdatedAt != nil {
		v := *t.UpdatedAt
		c.UpdatedAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		c.CompletedAt = &v
	}
	if t.Tags != nil {
		c.Tags = append([]string(nil), t.Tags...)
	}
	if t.Dependencies != nil {
		c.Dependencies = append([]int64(nil), t.Dependencies...)
	}
	return &c
}

// DependsOn reports whether t lists id among its dependencies.
func (t *Task) DependsOn(id int64) bool {
	for _, dep := range t.Dependencies {
		if dep == id {
			return true
		}
	}
	return false
}

// CreateRequest carries the caller-supplied fields for a new task.
// Status, actual hours, and timestamps are store-assigned.
type CreateRequest struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Priority       Priority `json:"priority"`
	Category       Category `json:"category"`
	Assignee       string   `json:"assignee"`
	EstimatedHours *float64 `json:"estimated_hours"`
	Tags           []string `json:"tags"`
	Dependencies   []int64  `json:"dependencies"`
}

// Validate checks the create payload against the field constraints.
// Dependency existence is the store's job, not the payload's.
func (r *CreateRequest) Validate() error {
	if n := utf8.RuneCountInString(r.Title); n < TitleMinLen || n > TitleMaxLen {
		return &ValidationError{Field: "title", Reason: fmt.Sprintf("length must be %d-%d characters", TitleMinLen, TitleMaxLen)}
	}
	if utf8.RuneCountInString(r.Description) > DescriptionMaxLen {
		return &ValidationError{Field: "description", Reason: fmt.Sprintf("must be at most %d characters", DescriptionMaxLen)}
	}
	if r.Priority != "" && !r.Priority.Valid() {
		return &ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", r.Priority)}
	}
	if !r.Category.Valid() {
		return &ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", r.Category)}
	}
	if utf8.RuneCountInString(r.Assignee) > AssigneeMaxLen {
		return &ValidationError{Field: "assignee", Reason: fmt.Sprintf("must be at most %d characters", AssigneeMaxLen)}
	}
	if err := validateHours("estimated_hours", r.EstimatedHours); err != nil {
		return err
	}
	if len(r.Tags) > MaxTags {
		return &ValidationError{Field: "tags", Reason: fmt.Sprintf("maximum %d tags allowed", MaxTags)}
	}
	return nil
}

// UpdateRequest carries a partial update. Nil fields are left untouched.
type UpdateRequest struct {
	Title          *string   `json:"title"`
	Description    *string   `json:"description"`
	Status         *Status   `json:"status"`
	Priority       *Priority `json:"priority"`
	Category       *Category `json:"category"`
	Assignee       *string   `json:"assignee"`
	EstimatedHours *float64  `json:"estimated_hours"`
	ActualHours    *float64  `json:"actual_hours"`
	Tags           *[]string `json:"tags"`
	Dependencies   *[]int64  `json:"dependencies"`
}

// Validate checks the supplied fields of a partial update.
func (r *UpdateRequest) Validate() error {
	if r.Title != nil {
		if n := utf8.RuneCountInString(*r.Title); n < TitleMinLen || n > TitleMaxLen {
			return &ValidationError{Field: "title", Reason: fmt.Sprintf("length must be %d-%d characters", TitleMinLen, TitleMaxLen)}
		}
	}
	if r.Description != nil && utf8.RuneCountInString(*r.Description) > DescriptionMaxLen {
		return &ValidationError{Field: "description", Reason: fmt.Sprintf("must be at most %d characters", DescriptionMaxLen)}
	}
	if r.Status != nil && !r.Status.Valid() {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", *r.Status)}
	}
	if r.Priority != nil && !r.Priority.Valid() {
		return &ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", *r.Priority)}
	}
	if r.Category != nil && !r.Category.Valid() {
		return &ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", *r.Category)}
	}
	if r.Assignee != nil && utf8.RuneCountInString(*r.Assignee) > AssigneeMaxLen {
		return &ValidationError{Field: "assignee", Reason: fmt.Sprintf("must be at most %d characters", AssigneeMaxLen)}
	}
	if err := validateHours("estimated_hours", r.EstimatedHours); err != nil {
		return err
	}
	if err := validateHours("actual_hours", r.ActualHours); err != nil {
		return err
	}
	if r.Tags != nil && len(*r.Tags) > MaxTags {
		return &ValidationError{Field: "tags", Reason: fmt.Sprintf("maximum %d tags allowed", MaxTags)}
	}
	return nil
}

func validateHours(field string, v *float64) error {
	if v == nil {
		return nil
	}
	if *v < 0 || *v > MaxHours {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must be in [0, %g]", MaxHours)}
	}
	return nil
}
