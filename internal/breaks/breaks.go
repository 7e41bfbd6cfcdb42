// Package breaks suggests what to do between pomodoro sessions.
package breaks

import "focusline/internal/domain"

const (
	ShortMinutes = 5
	LongMinutes  = 15
)

type suggestion struct {
	activity    string
	description string
}

var table = map[domain.Category]map[domain.BreakType]suggestion{
	domain.CategoryWork: {
		domain.BreakShort: {"Eye rest", "Look away from screen for 20 seconds"},
		domain.BreakLong:  {"Walk break", "Take a 15-minute walk outside"},
	},
	domain.CategoryPersonal: {
		domain.BreakShort: {"Deep breathing", "Take 5 deep breaths"},
		domain.BreakLong:  {"Tea break", "Enjoy a relaxing cup of tea"},
	},
	domain.CategoryLearning: {
		domain.BreakShort: {"Memory review", "Quickly review what you learned"},
		domain.BreakLong:  {"Note organization", "Organize your notes and thoughts"},
	},
	domain.CategoryHealth: {
		domain.BreakShort: {"Stretching", "Do some gentle stretches"},
		domain.BreakLong:  {"Exercise break", "Do a quick workout session"},
	},
	domain.CategoryCreative: {
		domain.BreakShort: {"Inspiration break", "Look at something inspiring"},
		domain.BreakLong:  {"Creative journaling", "Write or sketch your ideas"},
	},
}

// ForTask picks a long break after complex or urgent work and a short one otherwise.
// Unknown categories get the short work break.
func ForTask(category domain.Category, complexity domain.Complexity, priority domain.Priority) domain.CustomBreak {
	kind, minutes := domain.BreakShort, ShortMinutes
	if complexity == domain.ComplexityComplex || priority == domain.PriorityUrgent {
		kind, minutes = domain.BreakLong, LongMinutes
	}
	s, ok := table[category][kind]
	if !ok {
		kind, minutes = domain.BreakShort, ShortMinutes
		s = table[domain.CategoryWork][domain.BreakShort]
	}
	return domain.CustomBreak{Type: kind, Activity: s.activity, Description: s.description, Duration: minutes}
}

var activities = map[domain.Category]map[domain.EnergyLevel][]string{
	domain.CategoryWork: {
		domain.EnergyLow:    {"Gentle stretching", "Deep breathing", "Eye rest exercises"},
		domain.EnergyMedium: {"Quick walk", "Light stretching", "Hydration break"},
		domain.EnergyHigh:   {"Energy boost exercises", "Quick meditation", "Movement break"},
	},
	domain.CategoryPersonal: {
		domain.EnergyLow:    {"Mindful breathing", "Gentle yoga", "Tea break"},
		domain.EnergyMedium: {"Light exercise", "Creative doodling", "Nature break"},
		domain.EnergyHigh:   {"Dance break", "Quick workout", "Energizing music"},
	},
	domain.CategoryLearning: {
		domain.EnergyLow:    {"Memory games", "Puzzle break", "Learning reflection"},
		domain.EnergyMedium: {"Note review", "Concept mapping", "Discussion break"},
		domain.EnergyHigh:   {"Active recall", "Teaching moment", "Knowledge sharing"},
	},
	domain.CategoryHealth: {
		domain.EnergyLow:    {"Gentle movement", "Mindfulness", "Restorative poses"},
		domain.EnergyMedium: {"Moderate exercise", "Balance work", "Flexibility"},
		domain.EnergyHigh:   {"Cardio burst", "Strength training", "Dynamic stretching"},
	},
	domain.CategoryCreative: {
		domain.EnergyLow:    {"Inspiration browsing", "Mind mapping", "Creative journaling"},
		domain.EnergyMedium: {"Sketching", "Color exploration", "Pattern recognition"},
		domain.EnergyHigh:   {"Rapid prototyping", "Creative challenges", "Collaboration"},
	},
}

var fallbackActivities = []string{"Take a break", "Hydrate", "Move around"}

// Activities returns three break ideas for the kind of work and the user's energy.
func Activities(category domain.Category, energy domain.EnergyLevel) []string {
	if list, ok := activities[category][energy]; ok {
		return append([]string(nil), list...)
	}
	return append([]string(nil), fallbackActivities...)
}
