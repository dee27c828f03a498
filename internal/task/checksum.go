package task

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// ChecksumLen is the length of the hex fingerprint stored on each task.
const ChecksumLen = 16

// Checksum returns a deterministic fingerprint over all of t's fields except
// the checksum itself: the fields are laid out in a map (encoding/json
// serializes map keys in sorted order), timestamps are normalized to string
// form, and the canonical JSON is hashed with SHA-256 and truncated to 16 hex
// characters. Two tasks with identical field values always hash identically;
// the result is a change-detection token, not a security primitive.
func Checksum(t *Task) string {
	fields := map[string]any{
		"id":              t.ID,
		"title":           t.Title,
		"description":     t.Description,
		"status":          string(t.Status),
		"priority":        string(t.Priority),
		"category":        string(t.Category),
		"assignee":        t.Assignee,
		"estimated_hours": t.EstimatedHours,
		"actual_hours":    t.ActualHours,
		"tags":            t.Tags,
		"dependencies":    t.Dependencies,
		"created_at":      timeString(&t.CreatedAt),
		"updated_at":      timeString(t.UpdatedAt),
		"completed_at":    timeString(t.CompletedAt),
	}
	canonical, err := json.Marshal(fields)
	if err != nil {
		// Only unmarshalable values can fail here, and the field set above
		// contains none.
		panic("task: checksum marshal: " + err.Error())
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])[:ChecksumLen]
}

func timeString(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
