// Package resolve decides, before any detail fetch, what happens to each
// source resource given the target's existing titles and the duplicate
// policy. Under the skip policy resources already present in the target are
// never fetched, so the cost of a run scales with the number of new items.
package resolve

import (
	"fmt"
	"strings"

	"github.com/lherron/cfgsync/internal/resource"
)

// Policy is the configured reaction to a title that already exists in the
// target
type Policy string

const (
	PolicySkip   Policy = "skip"
	PolicyUpdate Policy = "update"
	PolicyAsk    Policy = "ask"
)

// ParsePolicy validates a configured policy name
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicySkip, PolicyUpdate, PolicyAsk:
		return p, nil
	default:
		return "", fmt.Errorf("invalid duplicate policy %q (want skip, update or ask)", s)
	}
}

// Action is what the write phase does with an item
type Action int

const (
	ActionCreate Action = iota + 1
	ActionUpdate
	ActionSkip
	// ActionAsk is pending until ResolveAsk replaces it with Update or Skip
	ActionAsk
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionSkip:
		return "skip"
	case ActionAsk:
		return "ask"
	default:
		return "unknown"
	}
}

// Decision is the action attached to one source item. ExistingID is the
// target id of the matching title for Update and Ask.
type Decision struct {
	Action     Action
	ExistingID string
}

// Item is one source listing entry with its decision
type Item struct {
	Source   resource.Summary
	Decision Decision
	// Fetch reports whether the item's detail must be retrieved
	Fetch bool
}

// Plan is the outcome of duplicate resolution for a whole source listing
type Plan struct {
	Policy Policy
	Items  []*Item
}

// Resolve matches source titles against the pre-run target snapshot. Every
// source item is resolved independently, so duplicate titles within the
// source never see each other's effects.
func Resolve(source, target []resource.Summary, policy Policy) *Plan {
	existing := make(map[string]string, len(target))
	for _, t := range target {
		key := t.Key()
		if _, seen := existing[key]; !seen {
			existing[key] = t.ID
		}
	}

	plan := &Plan{Policy: policy, Items: make([]*Item, 0, len(source))}
	for _, s := range source {
		item := &Item{Source: s}
		existingID, match := existing[s.Key()]

		switch {
		case !match:
			item.Decision = Decision{Action: ActionCreate}
			item.Fetch = true
		case policy == PolicySkip:
			item.Decision = Decision{Action: ActionSkip, ExistingID: existingID}
		case policy == PolicyUpdate:
			item.Decision = Decision{Action: ActionUpdate, ExistingID: existingID}
			item.Fetch = true
		default:
			item.Decision = Decision{Action: ActionAsk, ExistingID: existingID}
			item.Fetch = true
		}
		plan.Items = append(plan.Items, item)
	}
	return plan
}

// FetchQueue returns the items whose details must be fetched, in listing order
func (p *Plan) FetchQueue() []*Item {
	var out []*Item
	for _, it := range p.Items {
		if it.Fetch {
			out = append(out, it)
		}
	}
	return out
}

// ArchiveQueue returns the items whose detail is not needed for writing
func (p *Plan) ArchiveQueue() []*Item {
	var out []*Item
	for _, it := range p.Items {
		if !it.Fetch {
			out = append(out, it)
		}
	}
	return out
}

// Count returns how many items currently carry action a
func (p *Plan) Count(a Action) int {
	n := 0
	for _, it := range p.Items {
		if it.Decision.Action == a {
			n++
		}
	}
	return n
}
