package events

import "sort"

// Scope is an ordered cache key tuple on the client, e.g. ["nutrition", "plans"].
type Scope []string

var (
	ScopeWorkouts           = Scope{"workouts"}
	ScopeWorkoutTemplates   = Scope{"workouts", "templates"}
	ScopeNutritionOverview  = Scope{"nutrition", "overview"}
	ScopeNutritionPlans     = Scope{"nutrition", "plans"}
	ScopeNutritionAnalytics = Scope{"nutrition", "analytics"}
	ScopeExercises          = Scope{"exercises"}
	ScopeNotifications      = Scope{"notifications"}
)

// InvalidationTable is the contract between the events the API emits and the
// client cache scopes they make stale. Scopes are invalidated in listed order.
var InvalidationTable = map[Name][]Scope{
	WorkoutCreated: {ScopeWorkouts, ScopeWorkoutTemplates},
	WorkoutUpdated: {ScopeWorkouts, ScopeWorkoutTemplates},
	WorkoutDeleted: {ScopeWorkouts, ScopeWorkoutTemplates},

	NutritionPlanCreated: {ScopeNutritionOverview, ScopeNutritionPlans, ScopeNutritionAnalytics},
	NutritionPlanUpdated: {ScopeNutritionOverview, ScopeNutritionPlans, ScopeNutritionAnalytics},
	NutritionPlanDeleted: {ScopeNutritionOverview, ScopeNutritionPlans, ScopeNutritionAnalytics},

	ExerciseCreated: {ScopeExercises},
	ExerciseUpdated: {ScopeExercises},

	NotificationCreated: {ScopeNotifications},
}

// Names returns the table's event names in a stable order.
func Names(table map[Name][]Scope) []Name {
	names := make([]Name, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
