package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/hashicorp/go-hclog"

	"focusline/internal/breaks"
	"focusline/internal/domain"
	"focusline/internal/engine"
	"focusline/internal/events"
	"focusline/internal/optimize"
	"focusline/internal/selector"
	"focusline/internal/store"
	"focusline/internal/timer"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	Session  *engine.Session
	Events   *events.Writer
	Defaults optimize.Context
	BasePath string
	Auth     AuthConfig
	Logger   hclog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"list work: store: not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"field\":\"due_date\"}"`
}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// state is shared by every handler. Writes to the snapshot are serialized
// through mu; the store itself does not lock.
type state struct {
	engine   engine.Engine
	session  *engine.Session
	events   *events.Writer
	defaults optimize.Context
	logger   hclog.Logger
	mu       sync.Mutex
}

func (s *state) write(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

// New returns an HTTP handler exposing the Focusline API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Session == nil {
		return nil, errors.New("server: session is required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = logger.Named("auth")
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the requested envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	s := &state{
		engine:   cfg.Engine,
		session:  cfg.Session,
		events:   cfg.Events,
		defaults: cfg.Defaults,
		logger:   logger,
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Focusline API", "0.1.0")
	// Served at {base}/openapi.json and {base}/openapi.yaml; the docs UI reads it.
	hcfg.OpenAPIPath = path.Join(basePath, "openapi")
	hcfg.DocsPath = "/docs"
	if cfg.Auth.Enabled() {
		hcfg.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
			"bearerAuth": {Type: "http", Scheme: "bearer", BearerFormat: "JWT"},
		}
		hcfg.Security = []map[string][]string{{"bearerAuth": {}}}
	}
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerLists(group, s)
	registerTasks(group, s)
	registerSelection(group, s)
	registerSession(group, s)
	registerTimer(group, s)
	registerBreaks(group)
	registerEvents(group, s)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, timer.ErrUnknownItem):
		return newAPIError(http.StatusNotFound, "not_found", msg, nil)
	case errors.Is(err, store.ErrInvalidInput),
		errors.Is(err, engine.ErrNoSelection),
		errors.Is(err, domain.ErrInvalidCategory),
		errors.Is(err, domain.ErrInvalidPriority),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrInvalidEnergy):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	case errors.Is(err, optimize.ErrStale):
		return newAPIError(http.StatusConflict, "stale_request", msg, nil)
	case errors.Is(err, timer.ErrNothingToDo):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func badRequest(msg string, details map[string]any) huma.StatusError {
	return newAPIError(http.StatusBadRequest, "bad_request", msg, details)
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerLists(api huma.API, s *state) {
	type listPath struct {
		ListID string `path:"list_id"`
	}
	type listBody struct {
		Body ListResponse `json:"body"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-lists",
		Method:      http.MethodGet,
		Path:        "/lists",
		Summary:     "List task lists",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body listsResponse `json:"body"`
	}, error) {
		snap, err := s.engine.Store.Snapshot(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		resp := listsResponse{Items: make([]ListResponse, 0, len(snap.State.Lists)), ActiveListID: snap.State.ActiveListID}
		for _, l := range snap.State.Lists {
			resp.Items = append(resp.Items, listResponse(l))
		}
		return &struct {
			Body listsResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-list",
		Method:        http.MethodPost,
		Path:          "/lists",
		Summary:       "Create list",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateListRequest `json:"body"`
	}) (*listBody, error) {
		var l domain.List
		err := s.write(func() (err error) {
			l, err = s.engine.Store.CreateList(ctx, input.Body.Name, domain.Category(input.Body.Category))
			return err
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &listBody{Body: listResponse(l)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-list",
		Method:      http.MethodGet,
		Path:        "/lists/{list_id}",
		Summary:     "Get list",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *listPath) (*listBody, error) {
		l, err := s.engine.Store.GetList(ctx, input.ListID)
		if err != nil {
			return nil, handleError(err)
		}
		return &listBody{Body: listResponse(l)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-list",
		Method:      http.MethodPatch,
		Path:        "/lists/{list_id}",
		Summary:     "Rename, recategorize or archive a list",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ListID string            `path:"list_id"`
		Body   UpdateListRequest `json:"body"`
	}) (*listBody, error) {
		patch := store.ListPatch{Name: input.Body.Name, IsActive: input.Body.IsActive}
		if input.Body.Category != nil {
			c := domain.Category(*input.Body.Category)
			patch.Category = &c
		}
		var l domain.List
		err := s.write(func() (err error) {
			l, err = s.engine.Store.UpdateList(ctx, input.ListID, patch)
			return err
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &listBody{Body: listResponse(l)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-list",
		Method:        http.MethodDelete,
		Path:          "/lists/{list_id}",
		Summary:       "Delete a list and its tasks",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *listPath) (*struct{}, error) {
		if err := s.write(func() error { return s.engine.Store.DeleteList(ctx, input.ListID) }); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "activate-list",
		Method:        http.MethodPost,
		Path:          "/lists/{list_id}/activate",
		Summary:       "Make a list the active one",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *listPath) (*struct{}, error) {
		if err := s.write(func() error { return s.engine.Store.SetActiveList(ctx, input.ListID) }); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerTasks(api huma.API, s *state) {
	type taskBody struct {
		Body TaskResponse `json:"body"`
	}

	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/lists/{list_id}/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ListID string            `path:"list_id"`
		Body   CreateTaskRequest `json:"body"`
	}) (*taskBody, error) {
		b := input.Body
		in := store.TaskInput{
			Text:          b.Text,
			Description:   b.Description,
			Category:      domain.Category(b.Category),
			Priority:      domain.Priority(b.Priority),
			Status:        domain.Status(b.Status),
			EstimatedTime: b.EstimatedTime,
			Tags:          b.Tags,
			EnergyLevel:   domain.EnergyLevel(b.EnergyLevel),
			Complexity:    domain.Complexity(b.Complexity),
		}
		if b.DueDate != "" {
			due, err := domain.ParseDate(b.DueDate)
			if err != nil {
				return nil, badRequest("invalid due_date", map[string]any{"field": "due_date", "reason": err.Error()})
			}
			in.DueDate = &due
		}
		var t domain.Task
		err := s.write(func() (err error) {
			t, err = s.engine.Store.AddTask(ctx, input.ListID, in)
			return err
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/lists/{list_id}/tasks/{task_id}",
		Summary:     "Update task",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ListID string            `path:"list_id"`
		TaskID string            `path:"task_id"`
		Body   UpdateTaskRequest `json:"body"`
	}) (*taskBody, error) {
		patch, perr := taskPatch(input.Body)
		if perr != nil {
			return nil, perr
		}
		var t domain.Task
		err := s.write(func() (err error) {
			t, err = s.engine.Store.UpdateTask(ctx, input.ListID, input.TaskID, patch)
			return err
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/lists/{list_id}/tasks/{task_id}",
		Summary:       "Delete task",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ListID string `path:"list_id"`
		TaskID string `path:"task_id"`
	}) (*struct{}, error) {
		if err := s.write(func() error { return s.engine.Store.DeleteTask(ctx, input.ListID, input.TaskID) }); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-task",
		Method:      http.MethodPost,
		Path:        "/lists/{list_id}/tasks/{task_id}/move",
		Summary:     "Move task to another list",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ListID string          `path:"list_id"`
		TaskID string          `path:"task_id"`
		Body   MoveTaskRequest `json:"body"`
	}) (*taskBody, error) {
		if input.Body.ToListID == "" {
			return nil, badRequest("to_list_id is required", map[string]any{"field": "to_list_id"})
		}
		var t domain.Task
		err := s.write(func() (err error) {
			t, err = s.engine.Store.MoveTask(ctx, input.ListID, input.Body.ToListID, input.TaskID)
			return err
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: taskResponse(t)}, nil
	})
}

func taskPatch(b UpdateTaskRequest) (store.TaskPatch, huma.StatusError) {
	patch := store.TaskPatch{
		Text:          b.Text,
		Description:   b.Description,
		EstimatedTime: b.EstimatedTime,
		Tags:          b.Tags,
	}
	if b.Category != nil {
		v := domain.Category(*b.Category)
		patch.Category = &v
	}
	if b.Priority != nil {
		v := domain.Priority(*b.Priority)
		patch.Priority = &v
	}
	if b.Status != nil {
		v := domain.Status(*b.Status)
		patch.Status = &v
	}
	if b.EnergyLevel != nil {
		v := domain.EnergyLevel(*b.EnergyLevel)
		patch.EnergyLevel = &v
	}
	if b.Complexity != nil {
		v := domain.Complexity(*b.Complexity)
		patch.Complexity = &v
	}
	if b.DueDate != nil {
		if *b.DueDate == "" {
			patch.ClearDueDate = true
		} else {
			due, err := domain.ParseDate(*b.DueDate)
			if err != nil {
				return patch, badRequest("invalid due_date", map[string]any{"field": "due_date", "reason": err.Error()})
			}
			patch.DueDate = &due
		}
	}
	return patch, nil
}

func criteria(ranges, categories []string) (selector.Criteria, huma.StatusError) {
	var c selector.Criteria
	for _, raw := range ranges {
		r, err := selector.ParseRange(raw)
		if err != nil {
			return c, badRequest(err.Error(), map[string]any{"field": "date_ranges"})
		}
		c.Ranges = append(c.Ranges, r)
	}
	for _, raw := range categories {
		cat := domain.Category(raw)
		if !cat.IsValid() {
			return c, badRequest(fmt.Sprintf("unknown category %q", raw), map[string]any{"field": "categories"})
		}
		c.Categories = append(c.Categories, cat)
	}
	return c, nil
}

func registerSelection(api huma.API, s *state) {
	huma.Register(api, huma.Operation{
		OperationID: "select-tasks",
		Method:      http.MethodPost,
		Path:        "/select",
		Summary:     "Filter and rank tasks for a session",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body SelectRequest `json:"body"`
	}) (*struct {
		Body struct {
			Items []CandidateResponse `json:"items"`
		} `json:"body"`
	}, error) {
		c, cerr := criteria(input.Body.DateRanges, input.Body.Categories)
		if cerr != nil {
			return nil, cerr
		}
		items, err := s.engine.Select(ctx, c)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []CandidateResponse `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = mapCandidates(items)
		return out, nil
	})
}

func registerSession(api huma.API, s *state) {
	huma.Register(api, huma.Operation{
		OperationID: "plan-session",
		Method:      http.MethodPost,
		Path:        "/session/plan",
		Summary:     "Queue selected tasks for a pomodoro session",
		Description: "With optimize set the external optimizer is asked first; on failure the tasks are queued as-is.",
		Errors:      []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body PlanSessionRequest `json:"body"`
	}) (*struct {
		Body PlanResponse `json:"body"`
	}, error) {
		b := input.Body
		c, cerr := criteria(b.DateRanges, b.Categories)
		if cerr != nil {
			return nil, cerr
		}
		oc := s.defaults
		oc.FreeText = b.Context
		if b.EnergyLevel != "" {
			oc.EnergyLevel = domain.EnergyLevel(b.EnergyLevel)
		}
		if b.SessionLength > 0 {
			oc.SessionLength = b.SessionLength
		}
		opts := engine.PlanOptions{TaskIDs: b.TaskIDs, Criteria: c, Context: oc, Optimize: b.Optimize}
		// The optimizer call runs unlocked; only the queue and sync writes hold mu.
		draft, err := s.engine.Prepare(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		var plan engine.Plan
		err = s.write(func() (err error) {
			if plan, err = s.engine.Commit(ctx, draft); err != nil {
				return err
			}
			s.session.Replace(plan.Queue)
			return nil
		})
		if err != nil {
			return nil, handleError(err)
		}
		args := []any{"items", len(plan.Queue.Items), "fell_back", plan.FellBack}
		if p, ok := principalFromContext(ctx); ok {
			args = append(args, "subject", p.Subject)
		}
		s.logger.Info("session planned", args...)
		return &struct {
			Body PlanResponse `json:"body"`
		}{Body: PlanResponse{
			Queue:    queueResponse(plan.Queue, s.session.Timer.ActiveID()),
			FellBack: plan.FellBack,
			Updated:  plan.Updated,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/session",
		Summary:     "Current pomodoro queue",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body QueueResponse `json:"body"`
	}, error) {
		return &struct {
			Body QueueResponse `json:"body"`
		}{Body: queueResponse(s.session.Queue(), s.session.Timer.ActiveID())}, nil
	})
}

func registerTimer(api huma.API, s *state) {
	type itemPath struct {
		ItemID string `path:"item_id"`
	}
	type itemBody struct {
		Body ItemResponse `json:"body"`
	}
	action := func(id, summary string, fn func(t *timer.Engine, itemID string) error) {
		huma.Register(api, huma.Operation{
			OperationID: id + "-timer",
			Method:      http.MethodPost,
			Path:        "/timer/{item_id}/" + id,
			Summary:     summary,
			Errors:      []int{http.StatusNotFound, http.StatusConflict},
		}, func(ctx context.Context, input *itemPath) (*itemBody, error) {
			if err := s.write(func() error { return fn(s.session.Timer, input.ItemID) }); err != nil {
				return nil, handleError(err)
			}
			it, ok := s.session.Timer.Item(input.ItemID)
			if !ok {
				return nil, handleError(fmt.Errorf("%w: %s", timer.ErrUnknownItem, input.ItemID))
			}
			return &itemBody{Body: itemResponse(it)}, nil
		})
	}
	action("start", "Start an item; any other running item is paused", (*timer.Engine).Start)
	action("stop", "Pause an item, keeping its remaining time", (*timer.Engine).Stop)
	action("reset", "Reset an item to a full session", (*timer.Engine).Reset)
	action("complete", "Toggle an item's completion by hand", func(t *timer.Engine, id string) error {
		_, err := t.ToggleComplete(id)
		return err
	})

	huma.Register(api, huma.Operation{
		OperationID: "timer-state",
		Method:      http.MethodGet,
		Path:        "/timer",
		Summary:     "Timer state",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body QueueResponse `json:"body"`
	}, error) {
		return &struct {
			Body QueueResponse `json:"body"`
		}{Body: queueResponse(s.session.Queue(), s.session.Timer.ActiveID())}, nil
	})
}

func registerBreaks(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "suggest-breaks",
		Method:      http.MethodGet,
		Path:        "/breaks",
		Summary:     "Suggest break activities",
	}, func(ctx context.Context, input *struct {
		Category string `query:"category" enum:"work,personal,learning,health,creative" default:"work"`
		Energy   string `query:"energy" enum:"low,medium,high" default:"medium"`
	}) (*struct {
		Body struct {
			Activities []string `json:"activities"`
		} `json:"body"`
	}, error) {
		out := &struct {
			Body struct {
				Activities []string `json:"activities"`
			} `json:"body"`
		}{}
		out.Body.Activities = breaksFor(input.Category, input.Energy)
		return out, nil
	})
}

func registerEvents(api huma.API, s *state) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent notifications",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Kind  string `query:"kind" enum:"session,optimize,timer,sync,store"`
		Limit int    `query:"limit" default:"50"`
	}) (*struct {
		Body struct {
			Items []EventResponse `json:"items"`
		} `json:"body"`
	}, error) {
		out := &struct {
			Body struct {
				Items []EventResponse `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = []EventResponse{}
		if s.events == nil {
			return out, nil
		}
		items, err := s.events.Latest(ctx, normalizeLimit(input.Limit), input.Kind)
		if err != nil {
			return nil, handleError(err)
		}
		for _, evt := range items {
			out.Body.Items = append(out.Body.Items, eventResponse(evt))
		}
		return out, nil
	})
}

func breaksFor(category, energy string) []string {
	return breaks.Activities(domain.Category(category), domain.EnergyLevel(energy))
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
