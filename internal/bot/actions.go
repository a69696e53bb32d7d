package bot

import (
	"strconv"
	"strings"

	"picme-bot/internal/models"
)

// Action is a decoded composite action identifier. The wire form is either
// "ACTION" or "ACTION_PAYLOAD", both integers.
type Action struct {
	ID         int
	Payload    int
	HasPayload bool
}

// parseAction decodes a raw button or list-row identifier. A missing or
// unparseable root token reports ok=false and the event is not routed.
func parseAction(raw string) (Action, bool) {
	if raw == "" {
		return Action{}, false
	}
	parts := strings.SplitN(raw, "_", 2)
	id, err := strconv.Atoi(parts[0])
	if err != nil {
		return Action{}, false
	}
	action := Action{ID: id}
	if len(parts) == 2 {
		payload, err := strconv.Atoi(parts[1])
		if err != nil {
			return Action{}, false
		}
		action.Payload = payload
		action.HasPayload = true
	}
	return action, true
}

// reserved reports whether the action code belongs to the fixed
// menu/control set rather than the catalog id space.
func (a Action) reserved() bool {
	return models.ReservedActions[a.ID]
}
