package snapshot

import (
	"encoding/json"
	"fmt"

	"focusline/internal/domain"
)

type envelope struct {
	Version int             `json:"version"`
	State   json.RawMessage `json:"state"`
}

// upgrades[v] lifts a raw state document from version v to v+1.
var upgrades = map[int]func(map[string]any) error{
	0: collapseStatusFlags,
	1: defaultActiveList,
}

// Decode parses a stored document and migrates it to CurrentVersion.
func Decode(data []byte) (Snapshot, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Snapshot{}, fmt.Errorf("parse snapshot: %w", err)
	}
	if env.Version > CurrentVersion {
		return Snapshot{}, fmt.Errorf("%w: %d", ErrFutureVersion, env.Version)
	}
	state := map[string]any{}
	if len(env.State) > 0 && string(env.State) != "null" {
		if err := json.Unmarshal(env.State, &state); err != nil {
			return Snapshot{}, fmt.Errorf("parse snapshot state: %w", err)
		}
	}
	for v := env.Version; v < CurrentVersion; v++ {
		if err := upgrades[v](state); err != nil {
			return Snapshot{}, fmt.Errorf("migrate snapshot v%d: %w", v, err)
		}
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return Snapshot{}, err
	}
	out := Snapshot{Version: CurrentVersion}
	if err := json.Unmarshal(raw, &out.State); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot state: %w", err)
	}
	if out.State.Lists == nil {
		out.State.Lists = []domain.List{}
	}
	return out, nil
}

// collapseStatusFlags replaces the legacy checked/isCompleted booleans with the
// status enum and fills estimates that older builds left empty.
func collapseStatusFlags(state map[string]any) error {
	return eachItem(state, func(item map[string]any) {
		if s, _ := item["status"].(string); s == "" {
			checked, _ := item["checked"].(bool)
			completed, _ := item["isCompleted"].(bool)
			if checked || completed {
				item["status"] = string(domain.StatusCompleted)
			} else {
				item["status"] = string(domain.StatusPending)
			}
		}
		delete(item, "checked")
		delete(item, "isCompleted")
		if est, ok := item["estimatedTime"].(float64); !ok || est <= 0 {
			item["estimatedTime"] = float64(domain.DefaultSessionSeconds / 60)
		}
		if due, ok := item["dueDate"].(string); ok && due == "" {
			delete(item, "dueDate")
		}
		if _, ok := item["tags"].([]any); !ok {
			item["tags"] = []any{}
		}
	})
}

func defaultActiveList(state map[string]any) error {
	if id, _ := state["activeListId"].(string); id != "" {
		return nil
	}
	lists, _ := state["lists"].([]any)
	if len(lists) == 0 {
		return nil
	}
	first, ok := lists[0].(map[string]any)
	if !ok {
		return fmt.Errorf("list 0 is not an object")
	}
	state["activeListId"] = first["id"]
	return nil
}

func eachItem(state map[string]any, fn func(map[string]any)) error {
	lists, _ := state["lists"].([]any)
	for i, rawList := range lists {
		list, ok := rawList.(map[string]any)
		if !ok {
			return fmt.Errorf("list %d is not an object", i)
		}
		items, _ := list["items"].([]any)
		for j, rawItem := range items {
			item, ok := rawItem.(map[string]any)
			if !ok {
				return fmt.Errorf("list %d item %d is not an object", i, j)
			}
			fn(item)
		}
	}
	return nil
}
