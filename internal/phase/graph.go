package phase

import "github.com/mmynk/grouporder/internal/models"

// edges is the full transition graph. closing is only left through a
// successful close or a rollback to ready.
var edges = map[models.Status][]models.Status{
	models.StatusOpen:      {models.StatusSelecting, models.StatusExpired, models.StatusCancelled},
	models.StatusSelecting: {models.StatusReady, models.StatusCancelled},
	models.StatusReady:     {models.StatusClosing},
	models.StatusClosing:   {models.StatusClosed, models.StatusReady},
}

// CanTransition reports whether from → to is an edge of the graph.
func CanTransition(from, to models.Status) bool {
	return contains(edges[from], to)
}

func contains(statuses []models.Status, s models.Status) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}
