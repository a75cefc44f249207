package tipwatch

import "github.com/crimson-sun/tipwatch/internal/model"

// Categories returns the event categories the monitoring backend emits.
func Categories() []string {
	return []string{
		string(model.CategoryMessage),
		string(model.CategoryTipMenu),
		string(model.CategoryEpicGoal),
		string(model.CategoryRoulette),
		string(model.CategorySystem),
	}
}
