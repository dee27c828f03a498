package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/basket/taskd/internal/query"
	"github.com/basket/taskd/internal/task"
)

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("task id must be an integer")
	}
	return id, nil
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req task.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	created, err := s.store.Create(r.Context(), &req)
	if err != nil {
		writeTaskError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.TasksCreated.Add(r.Context(), 1)
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, err := s.store.Get(r.Context(), id)
	if err != nil {
		writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req task.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	updated, err := s.store.Update(r.Context(), id, &req)
	if err != nil {
		writeTaskError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.TasksUpdated.Add(r.Context(), 1)
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	affected, err := s.store.Delete(r.Context(), id)
	if err != nil {
		writeTaskError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.TasksDeleted.Add(r.Context(), 1)
		if affected > 0 {
			s.metrics.DependencyPrunes.Add(r.Context(), int64(affected))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":        "Task deleted successfully",
		"affected_tasks": affected,
	})
}

func (s *Server) handleBulkCreate(w http.ResponseWriter, r *http.Request) {
	var reqs []*task.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	created, err := s.store.BulkCreate(r.Context(), reqs)
	if err != nil {
		var limitErr *task.BulkLimitExceededError
		if s.metrics != nil && errors.As(err, &limitErr) {
			s.metrics.BulkRejected.Add(r.Context(), 1)
		}
		writeTaskError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.TasksCreated.Add(r.Context(), int64(len(created)))
	}
	ids := make([]int64, 0, len(created))
	for _, t := range created {
		ids = append(ids, t.ID)
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":  fmt.Sprintf("Successfully created %d tasks", len(created)),
		"task_ids": ids,
	})
}

// handleListTasks filters, sorts, and paginates the current snapshot.
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	params, err := parseListParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snapshot := s.store.List(r.Context())
	page := query.List(snapshot, params)
	writeJSON(w, http.StatusOK, page)
}

func parseListParams(r *http.Request) (query.Params, error) {
	q := r.URL.Query()
	p := query.Params{
		Filter: query.Filter{
			Status:   task.Status(q.Get("status")),
			Priority: task.Priority(q.Get("priority")),
			Category: task.Category(q.Get("category")),
			Assignee: q.Get("assignee"),
			Tags:     q.Get("tags"),
		},
		SortBy: q.Get("sort_by"),
	}

	if p.Filter.Status != "" && !p.Filter.Status.Valid() {
		return p, fmt.Errorf("invalid status filter %q", p.Filter.Status)
	}
	if p.Filter.Priority != "" && !p.Filter.Priority.Valid() {
		return p, fmt.Errorf("invalid priority filter %q", p.Filter.Priority)
	}
	if p.Filter.Category != "" && !p.Filter.Category.Valid() {
		return p, fmt.Errorf("invalid category filter %q", p.Filter.Category)
	}
	if p.SortBy != "" && !query.ValidSortKey(p.SortBy) {
		return p, fmt.Errorf("invalid sort_by %q", p.SortBy)
	}

	switch q.Get("order") {
	case "", "desc":
		p.Descending = true
	case "asc":
	default:
		return p, fmt.Errorf("order must be asc or desc")
	}

	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return p, fmt.Errorf("offset must be a non-negative integer")
		}
		p.Offset = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > query.MaxLimit {
			return p, fmt.Errorf("limit must be an integer between 1 and %d", query.MaxLimit)
		}
		p.Limit = n
	}

	p.Normalize()
	return p, nil
}
