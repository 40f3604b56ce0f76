package migrate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lherron/cfgsync/internal/resource"
	"github.com/lherron/cfgsync/internal/users"
)

var (
	// ErrInvalidPayload marks dashboards rejected before any write
	ErrInvalidPayload = errors.New("invalid dashboard payload")
	// ErrNotPersisted marks creates the target acknowledged but did not store
	ErrNotPersisted = errors.New("dashboard not persisted by target")
)

// Prepare turns a fetched source dashboard into the payload written to the
// target. The source is left untouched.
//
//   - the owner is remapped through dir by email; when it cannot be mapped and
//     no default is configured the field is omitted, never nulled
//   - USER access rules are remapped the same way; any rule the target cannot
//     honor becomes a GLOBAL rule with an empty related id
//   - the read-only owner object is dropped
//   - the source id is kept so later runs recognize the dashboard
func Prepare(src *resource.Resource, dir *users.Directory) (*resource.Resource, error) {
	if err := validate(src); err != nil {
		return nil, err
	}

	out := src.Clone()
	out.DeleteField(resource.FieldOwner)

	out.OwnerID = nil
	sourceOwner := ""
	if src.OwnerID != nil {
		sourceOwner = *src.OwnerID
	}
	if owner, ok := dir.RemapOwner(sourceOwner); ok {
		out.OwnerID = &owner
	}

	out.AccessRules = rewriteAccessRules(src.AccessRules, dir)
	return out, nil
}

func rewriteAccessRules(rules []resource.AccessRule, dir *users.Directory) []resource.AccessRule {
	seen := make(map[resource.AccessRule]struct{}, len(rules))
	out := make([]resource.AccessRule, 0, len(rules))
	for _, r := range rules {
		rule := r
		if rule.AccessType == "" {
			rule.AccessType = resource.AccessReadWrite
		}
		switch rule.RelationType {
		case resource.RelationUser:
			if id, ok := dir.RemapRelated(rule.RelatedID); ok {
				rule.RelatedID = id
				break
			}
			rule.RelationType = resource.RelationGlobal
			rule.RelatedID = ""
		default:
			rule.RelationType = resource.RelationGlobal
			rule.RelatedID = ""
		}
		if _, dup := seen[rule]; dup {
			continue
		}
		seen[rule] = struct{}{}
		out = append(out, rule)
	}
	if len(out) == 0 {
		out = append(out, resource.GlobalReadWrite())
	}
	return out
}

func validate(d *resource.Resource) error {
	if resource.NormalizeTitle(d.Title) == "" {
		return fmt.Errorf("%w: dashboard has no title", ErrInvalidPayload)
	}
	widgets, err := d.Widgets()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if len(widgets) == 0 {
		return fmt.Errorf("%w: dashboard has no widgets", ErrInvalidPayload)
	}
	for i, w := range widgets {
		var missing []string
		if w.ID == "" {
			missing = append(missing, "id")
		}
		if w.Width < 1 {
			missing = append(missing, "width")
		}
		if w.Height < 1 {
			missing = append(missing, "height")
		}
		if len(w.Config) == 0 {
			missing = append(missing, "config")
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w: widget %d is missing %s", ErrInvalidPayload, i, strings.Join(missing, ", "))
		}
	}
	return nil
}
