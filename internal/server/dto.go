package server

import (
	"time"

	"focusline/internal/domain"
	"focusline/internal/engine"
	"focusline/internal/events"
	"focusline/internal/selector"
	"focusline/internal/session"
)

// Request payloads

type CreateListRequest struct {
	Name     string `json:"name"`
	Category string `json:"category" enum:"work,personal,learning,health,creative"`
}

type UpdateListRequest struct {
	Name     *string `json:"name,omitempty"`
	Category *string `json:"category,omitempty" enum:"work,personal,learning,health,creative"`
	IsActive *bool   `json:"is_active,omitempty"`
}

type CreateTaskRequest struct {
	Text          string   `json:"text"`
	Description   string   `json:"description,omitempty"`
	Category      string   `json:"category,omitempty" enum:"work,personal,learning,health,creative"`
	Priority      string   `json:"priority,omitempty" enum:"low,medium,high,urgent"`
	Status        string   `json:"status,omitempty" enum:"pending,completed"`
	EstimatedTime int      `json:"estimated_time,omitempty" minimum:"0" doc:"Minutes"`
	DueDate       string   `json:"due_date,omitempty" example:"2025-03-14"`
	Tags          []string `json:"tags,omitempty"`
	EnergyLevel   string   `json:"energy_level,omitempty" enum:"low,medium,high"`
	Complexity    string   `json:"complexity,omitempty" enum:"simple,moderate,complex"`
}

type UpdateTaskRequest struct {
	Text          *string   `json:"text,omitempty"`
	Description   *string   `json:"description,omitempty"`
	Category      *string   `json:"category,omitempty" enum:"work,personal,learning,health,creative"`
	Priority      *string   `json:"priority,omitempty" enum:"low,medium,high,urgent"`
	Status        *string   `json:"status,omitempty" enum:"pending,completed"`
	EstimatedTime *int      `json:"estimated_time,omitempty" doc:"Minutes"`
	DueDate       *string   `json:"due_date,omitempty" doc:"Empty string clears the due date"`
	Tags          *[]string `json:"tags,omitempty"`
	EnergyLevel   *string   `json:"energy_level,omitempty" enum:"low,medium,high"`
	Complexity    *string   `json:"complexity,omitempty" enum:"simple,moderate,complex"`
}

type MoveTaskRequest struct {
	ToListID string `json:"to_list_id"`
}

type SelectRequest struct {
	DateRanges []string `json:"date_ranges,omitempty" enum:"today,week,month"`
	Categories []string `json:"categories,omitempty" enum:"work,personal,learning,health,creative"`
}

type PlanSessionRequest struct {
	TaskIDs       []string `json:"task_ids"`
	DateRanges    []string `json:"date_ranges,omitempty" enum:"today,week,month"`
	Categories    []string `json:"categories,omitempty" enum:"work,personal,learning,health,creative"`
	EnergyLevel   string   `json:"energy_level,omitempty" enum:"low,medium,high"`
	SessionLength int      `json:"session_length,omitempty" doc:"Minutes"`
	Context       string   `json:"context,omitempty"`
	Optimize      bool     `json:"optimize,omitempty"`
}

// Response payloads

type TaskResponse struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	Description   string   `json:"description,omitempty"`
	Category      string   `json:"category"`
	Priority      string   `json:"priority"`
	Status        string   `json:"status"`
	EstimatedTime int      `json:"estimated_time"`
	DueDate       string   `json:"due_date,omitempty"`
	Tags          []string `json:"tags"`
	EnergyLevel   string   `json:"energy_level,omitempty"`
	Complexity    string   `json:"complexity,omitempty"`
	CreatedAt     string   `json:"created_at" format:"date-time"`
	UpdatedAt     string   `json:"updated_at" format:"date-time"`
}

type ListResponse struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Category  string         `json:"category"`
	IsActive  bool           `json:"is_active"`
	Items     []TaskResponse `json:"items"`
	CreatedAt string         `json:"created_at" format:"date-time"`
	UpdatedAt string         `json:"updated_at" format:"date-time"`
}

type listsResponse struct {
	Items        []ListResponse `json:"items"`
	ActiveListID string         `json:"active_list_id,omitempty"`
}

type CandidateResponse struct {
	ListID string       `json:"list_id"`
	Task   TaskResponse `json:"task"`
}

type BreakResponse struct {
	Type        string `json:"type,omitempty"`
	Activity    string `json:"activity"`
	Description string `json:"description"`
	Duration    int    `json:"duration" doc:"Minutes"`
}

type ItemResponse struct {
	ID             string         `json:"id"`
	Text           string         `json:"text"`
	Description    string         `json:"description,omitempty"`
	Status         string         `json:"status"`
	RemainingTime  int            `json:"remaining_time" doc:"Seconds"`
	Clock          string         `json:"clock" example:"25:00"`
	IsRunning      bool           `json:"is_running"`
	CustomBreak    *BreakResponse `json:"custom_break,omitempty"`
	Priority       string         `json:"priority,omitempty"`
	Category       string         `json:"category,omitempty"`
	OriginalTodoID string         `json:"original_todo_id,omitempty"`
	OriginalListID string         `json:"original_list_id,omitempty"`
}

type QueueResponse struct {
	Items       []ItemResponse `json:"items"`
	AIOptimized bool           `json:"ai_optimized"`
	ActiveID    string         `json:"active_id,omitempty"`
}

type PlanResponse struct {
	Queue    QueueResponse `json:"queue"`
	FellBack bool          `json:"fell_back"`
	Updated  int           `json:"updated"`
}

type EventResponse struct {
	ID      int64          `json:"id"`
	TS      string         `json:"ts" format:"date-time"`
	Level   string         `json:"level"`
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Mapping helpers

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func taskResponse(t domain.Task) TaskResponse {
	resp := TaskResponse{
		ID:            t.ID,
		Text:          t.Text,
		Description:   t.Description,
		Category:      string(t.Category),
		Priority:      string(t.Priority),
		Status:        string(t.Status),
		EstimatedTime: t.EstimatedTime,
		Tags:          t.Tags,
		EnergyLevel:   string(t.EnergyLevel),
		Complexity:    string(t.Complexity),
		CreatedAt:     formatTime(t.CreatedAt),
		UpdatedAt:     formatTime(t.UpdatedAt),
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	if t.DueDate != nil {
		resp.DueDate = t.DueDate.String()
	}
	return resp
}

func mapTasks(items []domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		out = append(out, taskResponse(t))
	}
	return out
}

func listResponse(l domain.List) ListResponse {
	return ListResponse{
		ID:        l.ID,
		Name:      l.Name,
		Category:  string(l.Category),
		IsActive:  l.IsActive,
		Items:     mapTasks(l.Items),
		CreatedAt: formatTime(l.CreatedAt),
		UpdatedAt: formatTime(l.UpdatedAt),
	}
}

func mapCandidates(items []selector.Candidate) []CandidateResponse {
	out := make([]CandidateResponse, 0, len(items))
	for _, c := range items {
		out = append(out, CandidateResponse{ListID: c.ListID, Task: taskResponse(c.Task)})
	}
	return out
}

func itemResponse(it domain.PomodoroItem) ItemResponse {
	resp := ItemResponse{
		ID:             it.ID,
		Text:           it.Text,
		Description:    it.Description,
		Status:         string(it.Status),
		RemainingTime:  it.RemainingTime,
		Clock:          engine.Clock(it.RemainingTime),
		IsRunning:      it.IsRunning,
		Priority:       string(it.Priority),
		Category:       string(it.Category),
		OriginalTodoID: it.OriginalTodoID,
		OriginalListID: it.OriginalListID,
	}
	if b := it.CustomBreak; b != nil {
		resp.CustomBreak = &BreakResponse{Type: string(b.Type), Activity: b.Activity, Description: b.Description, Duration: b.Duration}
	}
	return resp
}

func queueResponse(q session.Queue, activeID string) QueueResponse {
	resp := QueueResponse{Items: make([]ItemResponse, 0, len(q.Items)), AIOptimized: q.AIOptimized, ActiveID: activeID}
	for _, it := range q.Items {
		resp.Items = append(resp.Items, itemResponse(it))
	}
	return resp
}

func eventResponse(e events.Event) EventResponse {
	return EventResponse{ID: e.ID, TS: e.TS, Level: e.Level, Kind: e.Kind, Message: e.Message, Payload: e.Payload}
}
