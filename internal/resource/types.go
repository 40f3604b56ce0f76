package resource

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RelationType is the subject kind an access rule grants access to
type RelationType string

const (
	RelationGlobal   RelationType = "GLOBAL"
	RelationUser     RelationType = "USER"
	RelationAPIToken RelationType = "API_TOKEN"
	RelationRole     RelationType = "ROLE"
	RelationTeam     RelationType = "TEAM"
)

// AccessType is the permission an access rule grants
type AccessType string

const (
	AccessRead      AccessType = "READ"
	AccessReadWrite AccessType = "READ_WRITE"
)

// AccessRule is one entry of a dashboard's access control list
type AccessRule struct {
	AccessType   AccessType   `json:"accessType"`
	RelationType RelationType `json:"relationType"`
	RelatedID    string       `json:"relatedId"`
}

// GlobalReadWrite is the rule written when a dashboard ends up without any
// rule the target can honor.
func GlobalReadWrite() AccessRule {
	return AccessRule{AccessType: AccessReadWrite, RelationType: RelationGlobal, RelatedID: ""}
}

// Summary is the lightweight listing entry of a resource
type Summary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Key returns the identity used for duplicate detection
func (s Summary) Key() string {
	return NormalizeTitle(s.Title)
}

// UnmarshalJSON accepts string or numeric ids
func (s *Summary) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID    json.RawMessage `json:"id"`
		Title *string         `json:"title"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id, err := decodeID(raw.ID)
	if err != nil {
		return fmt.Errorf("decode id: %w", err)
	}
	s.ID = id
	s.Title = ""
	if raw.Title != nil {
		s.Title = *raw.Title
	}
	return nil
}

// String renders the summary for logs and failure reports
func (s Summary) String() string {
	return fmt.Sprintf("%q (%s)", s.Title, s.ID)
}

// User is one entry of a platform's user listing
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// UnmarshalJSON accepts string or numeric ids
func (u *User) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID    json.RawMessage `json:"id"`
		Email string          `json:"email"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id, err := decodeID(raw.ID)
	if err != nil {
		return fmt.Errorf("decode user id: %w", err)
	}
	u.ID, u.Email = id, raw.Email
	return nil
}

// Widget holds the fields of a dashboard widget the engine validates
type Widget struct {
	ID     string          `json:"id"`
	Width  int             `json:"width"`
	Height int             `json:"height"`
	Config json.RawMessage `json:"config"`
}

// NormalizeTitle returns the form of a title compared across instances.
// Matching is exact after trimming surrounding whitespace.
func NormalizeTitle(title string) string {
	return strings.TrimSpace(title)
}
