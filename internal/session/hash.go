package session

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/zeebo/blake3"
)

// determinismKey separates determinism hashes from any other BLAKE3 use.
// Changing it invalidates every recorded hash.
var determinismKey = [32]byte{
	'd', 'e', 's', 'i', 'g', 'n', 'g', 'o', 'v', '.', 's', 'e', 's', 's', 'i', 'o',
	'n', '.', 'p', 'l', 'a', 'n', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

type canonicalAction struct {
	Tool       string         `json:"tool"`
	Parameters map[string]any `json:"parameters"`
}

type canonicalPlan struct {
	Request string            `json:"request"`
	Branch  string            `json:"branch"`
	Actions []canonicalAction `json:"actions"`
}

// DeterminismHash returns a hex BLAKE3 hash over the request, branch and
// planned actions (tool and parameters only). Session and agent identity,
// timestamps and results do not contribute, so two sessions planned from
// the same input hash identically.
func (s *State) DeterminismHash() (string, error) {
	plan := canonicalPlan{
		Request: s.Request,
		Branch:  s.BranchID,
		Actions: make([]canonicalAction, 0, len(s.Actions)),
	}
	for _, a := range s.Actions {
		params := a.Parameters
		if params == nil {
			params = map[string]any{}
		}
		plan.Actions = append(plan.Actions, canonicalAction{Tool: a.Tool, Parameters: params})
	}

	// encoding/json sorts map keys, which makes the encoding canonical.
	data, err := json.Marshal(plan)
	if err != nil {
		return "", fmt.Errorf("encode plan: %w", err)
	}

	h, err := blake3.NewKeyed(determinismKey[:])
	if err != nil {
		return "", fmt.Errorf("init hasher: %w", err)
	}
	_, _ = h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}
