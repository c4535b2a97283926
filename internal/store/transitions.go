package store

import "github.com/lg12346/FilaVirtual/internal/models"

var transitionMap = map[string][]string{
	"call_ticket":     {models.StatusOpen},
	"call_specific":   {models.StatusOpen},
	"complete_ticket": {models.StatusCalled},
	"no_show":         {models.StatusCalled},
}

// ValidTransition reports whether the action may be applied to a ticket in
// the given status. completed and no_show are terminal: no action leaves them.
func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}
