package platformtest

import (
	"encoding/json"
	"fmt"

	"github.com/lherron/cfgsync/internal/resource"
)

// Dashboard builds a valid dashboard payload with one widget
func Dashboard(id, title string) *resource.Resource {
	d := resource.New(id, title)
	d.Extra.Set(resource.FieldWidgets, json.RawMessage(
		fmt.Sprintf(`[{"id":"%s-w1","width":6,"height":4,"config":{"metric":"cpu"}}]`, id)))
	d.Extra.Set("writable", json.RawMessage(`true`))
	return d
}

// OwnedDashboard builds a dashboard owned by ownerID and shared with it
func OwnedDashboard(id, title, ownerID string) *resource.Resource {
	d := Dashboard(id, title)
	d.OwnerID = &ownerID
	d.AccessRules = []resource.AccessRule{{
		AccessType:   resource.AccessReadWrite,
		RelationType: resource.RelationUser,
		RelatedID:    ownerID,
	}}
	d.Extra.Set(resource.FieldOwner, json.RawMessage(fmt.Sprintf(`{"id":%q}`, ownerID)))
	return d
}

// Seed adds count dashboards with ids idPrefix-N and titles "Dashboard N"
func (s *Server) Seed(idPrefix string, count int) {
	for i := 0; i < count; i++ {
		s.AddDashboard(Dashboard(fmt.Sprintf("%s-%d", idPrefix, i), fmt.Sprintf("Dashboard %d", i)))
	}
}
