package domain

// DefaultSessionSeconds is a standard 25 minute pomodoro.
const DefaultSessionSeconds = 1500

type BreakType string

const (
	BreakShort  BreakType = "short"
	BreakLong   BreakType = "long"
	BreakCustom BreakType = "custom"
)

// CustomBreak is a suggested activity for the break after a session.
type CustomBreak struct {
	Type        BreakType `json:"type,omitempty"`
	Activity    string    `json:"activity"`
	Description string    `json:"description"`
	Duration    int       `json:"duration"` // minutes
}

// BackRef is a point-in-time copy of the source task, used only to locate it again.
// It is not a live link: the source may have been edited or deleted since.
type BackRef struct {
	OriginalTodoID        string   `json:"originalTodoId,omitempty"`
	OriginalListID        string   `json:"originalListId,omitempty"`
	OriginalCategory      Category `json:"originalCategory,omitempty"`
	OriginalPriority      Priority `json:"originalPriority,omitempty"`
	OriginalEstimatedTime int      `json:"originalEstimatedTime,omitempty"`
	OriginalDueDate       *Date    `json:"originalDueDate,omitempty"`
	OriginalTags          []string `json:"originalTags,omitempty"`
}

// NewBackRef snapshots t as it sits in list listID.
func NewBackRef(listID string, t Task) BackRef {
	ref := BackRef{
		OriginalTodoID:        t.ID,
		OriginalListID:        listID,
		OriginalCategory:      t.Category,
		OriginalPriority:      t.Priority,
		OriginalEstimatedTime: t.EstimatedTime,
		OriginalTags:          append([]string{}, t.Tags...),
	}
	if t.DueDate != nil {
		due := *t.DueDate
		ref.OriginalDueDate = &due
	}
	return ref
}

func (r BackRef) IsSet() bool {
	return r.OriginalTodoID != "" && r.OriginalListID != ""
}

// PomodoroItem is a timer-scoped projection of a Task. The Task stays authoritative.
type PomodoroItem struct {
	ID            string       `json:"id"`
	Text          string       `json:"text"`
	Description   string       `json:"description,omitempty"`
	Status        Status       `json:"status"`
	RemainingTime int          `json:"remainingTime"` // seconds
	IsRunning     bool         `json:"isRunning"`
	CustomBreak   *CustomBreak `json:"customBreak,omitempty"`
	Priority      Priority     `json:"priority,omitempty"`
	Category      Category     `json:"category,omitempty"`
	EnergyLevel   EnergyLevel  `json:"energyLevel,omitempty"`
	Complexity    Complexity   `json:"complexity,omitempty"`
	BackRef
}

func (p PomodoroItem) IsCompleted() bool { return p.Status.IsCompleted() }

// SessionSeconds converts an estimate in minutes to the initial countdown.
func SessionSeconds(estimatedMinutes int) int {
	if estimatedMinutes <= 0 {
		return DefaultSessionSeconds
	}
	return estimatedMinutes * 60
}
