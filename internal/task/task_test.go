package task

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validCreate() *CreateRequest {
	return &CreateRequest{
		Title:    "Write deployment runbook",
		Category: CategoryDocumentation,
	}
}

func TestCreateRequestValidate(t *testing.T) {
	if err := validCreate().Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*CreateRequest)
		field  string
	}{
		{"title too short", func(r *CreateRequest) { r.Title = "ab" }, "title"},
		{"title too long", func(r *CreateRequest) { r.Title = strings.Repeat("x", 201) }, "title"},
		{"description too long", func(r *CreateRequest) { r.Description = strings.Repeat("x", 2001) }, "description"},
		{"unknown priority", func(r *CreateRequest) { r.Priority = "urgent" }, "priority"},
		{"missing category", func(r *CreateRequest) { r.Category = "" }, "category"},
		{"unknown category", func(r *CreateRequest) { r.Category = "ops" }, "category"},
		{"assignee too long", func(r *CreateRequest) { r.Assignee = strings.Repeat("x", 101) }, "assignee"},
		{"negative hours", func(r *CreateRequest) { v := -1.0; r.EstimatedHours = &v }, "estimated_hours"},
		{"hours over cap", func(r *CreateRequest) { v := 1000.5; r.EstimatedHours = &v }, "estimated_hours"},
		{"too many tags", func(r *CreateRequest) { r.Tags = make([]string, 11) }, "tags"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validCreate()
			tc.mutate(req)
			err := req.Validate()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tc.field {
				t.Fatalf("expected field %q, got %q", tc.field, verr.Field)
			}
		})
	}
}

func TestLengthLimitsCountCharactersNotBytes(t *testing.T) {
	// 150 two-byte runes: 300 bytes but well inside the 200-character cap.
	req := validCreate()
	req.Title = strings.Repeat("é", 150)
	if err := req.Validate(); err != nil {
		t.Fatalf("150-character title rejected: %v", err)
	}

	// Two runes, six bytes: still under the 3-character minimum.
	req = validCreate()
	req.Title = "日本"
	err := req.Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "title" {
		t.Fatalf("expected title validation error, got %v", err)
	}

	req = validCreate()
	req.Description = strings.Repeat("ü", 2000)
	req.Assignee = strings.Repeat("ß", 100)
	if err := req.Validate(); err != nil {
		t.Fatalf("multibyte description/assignee at the limit rejected: %v", err)
	}

	title := strings.Repeat("é", 201)
	err = (&UpdateRequest{Title: &title}).Validate()
	if !errors.As(err, &verr) || verr.Field != "title" {
		t.Fatalf("expected title validation error, got %v", err)
	}
	desc := strings.Repeat("ü", 2000)
	if err := (&UpdateRequest{Description: &desc}).Validate(); err != nil {
		t.Fatalf("multibyte description at the limit rejected: %v", err)
	}
}

func TestCreateRequestBoundaryValues(t *testing.T) {
	req := validCreate()
	req.Title = strings.Repeat("x", 3)
	if err := req.Validate(); err != nil {
		t.Fatalf("3-char title rejected: %v", err)
	}
	req.Title = strings.Repeat("x", 200)
	if err := req.Validate(); err != nil {
		t.Fatalf("200-char title rejected: %v", err)
	}
	zero := 0.0
	cap := 1000.0
	req.EstimatedHours = &zero
	if err := req.Validate(); err != nil {
		t.Fatalf("zero hours rejected: %v", err)
	}
	req.EstimatedHours = &cap
	if err := req.Validate(); err != nil {
		t.Fatalf("1000 hours rejected: %v", err)
	}
	req.Tags = make([]string, 10)
	if err := req.Validate(); err != nil {
		t.Fatalf("10 tags rejected: %v", err)
	}
}

func TestUpdateRequestValidate(t *testing.T) {
	empty := &UpdateRequest{}
	if err := empty.Validate(); err != nil {
		t.Fatalf("empty update rejected: %v", err)
	}

	bad := Status("paused")
	err := (&UpdateRequest{Status: &bad}).Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "status" {
		t.Fatalf("expected status validation error, got %v", err)
	}

	over := 1001.0
	err = (&UpdateRequest{ActualHours: &over}).Validate()
	if !errors.As(err, &verr) || verr.Field != "actual_hours" {
		t.Fatalf("expected actual_hours validation error, got %v", err)
	}
}

func TestCloneIsDeep(t *testing.T) {
	est := 4.5
	upd := time.Now()
	orig := &Task{
		ID:             7,
		Title:          "Fix login redirect",
		EstimatedHours: &est,
		Tags:           []string{"auth"},
		Dependencies:   []int64{3},
		UpdatedAt:      &upd,
	}
	c := orig.Clone()

	*c.EstimatedHours = 9.0
	c.Tags[0] = "web"
	c.Dependencies[0] = 99
	*c.UpdatedAt = upd.Add(time.Hour)

	if *orig.EstimatedHours != 4.5 {
		t.Fatalf("clone aliased EstimatedHours")
	}
	if orig.Tags[0] != "auth" {
		t.Fatalf("clone aliased Tags")
	}
	if orig.Dependencies[0] != 3 {
		t.Fatalf("clone aliased Dependencies")
	}
	if !orig.UpdatedAt.Equal(upd) {
		t.Fatalf("clone aliased UpdatedAt")
	}
}

func TestPriorityRank(t *testing.T) {
	order := []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Fatalf("%s should rank above %s", order[i], order[i-1])
		}
	}
}
