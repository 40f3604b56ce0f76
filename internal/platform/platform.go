// Package platform is the typed view of the monitoring platform's REST API
// used by the sync engine and its collaborators.
package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/lherron/cfgsync/internal/client"
	"github.com/lherron/cfgsync/internal/resource"
)

const (
	DashboardsPath = "/api/custom-dashboard"
	UsersPath      = "/api/settings/users"
)

// API talks to one platform instance through a shared retrying client
type API struct {
	client   *client.Client
	endpoint client.Endpoint
}

// New binds a client to an endpoint
func New(c *client.Client, endpoint client.Endpoint) *API {
	return &API{client: c, endpoint: endpoint}
}

// Name returns the endpoint name ("source" or "target")
func (a *API) Name() string { return a.endpoint.Name }

// ListDashboards returns the lightweight dashboard listing
func (a *API) ListDashboards(ctx context.Context) ([]resource.Summary, error) {
	var out []resource.Summary
	if err := a.get(ctx, DashboardsPath, &out); err != nil {
		return nil, fmt.Errorf("list %s dashboards: %w", a.endpoint.Name, err)
	}
	return out, nil
}

// GetDashboard fetches the full payload of one dashboard
func (a *API) GetDashboard(ctx context.Context, id string) (*resource.Resource, error) {
	var out resource.Resource
	if err := a.get(ctx, dashboardPath(id), &out); err != nil {
		return nil, fmt.Errorf("get %s dashboard %s: %w", a.endpoint.Name, id, err)
	}
	return &out, nil
}

// CreateDashboard posts a new dashboard and returns the stored version
func (a *API) CreateDashboard(ctx context.Context, d *resource.Resource) (*resource.Resource, error) {
	res, err := a.client.Do(ctx, client.Request{
		Endpoint: a.endpoint,
		Method:   http.MethodPost,
		Path:     DashboardsPath,
		Body:     d,
	})
	if err != nil {
		return nil, fmt.Errorf("create dashboard %q: %w", d.Title, err)
	}
	return decodeOptional(res)
}

// UpdateDashboard replaces the dashboard stored under id
func (a *API) UpdateDashboard(ctx context.Context, id string, d *resource.Resource) (*resource.Resource, error) {
	res, err := a.client.Do(ctx, client.Request{
		Endpoint: a.endpoint,
		Method:   http.MethodPut,
		Path:     dashboardPath(id),
		Body:     d,
	})
	if err != nil {
		return nil, fmt.Errorf("update dashboard %q (%s): %w", d.Title, id, err)
	}
	return decodeOptional(res)
}

// DeleteDashboard removes one dashboard. Only the cleanup command uses it.
func (a *API) DeleteDashboard(ctx context.Context, id string) error {
	_, err := a.client.Do(ctx, client.Request{
		Endpoint: a.endpoint,
		Method:   http.MethodDelete,
		Path:     dashboardPath(id),
	})
	if err != nil {
		return fmt.Errorf("delete dashboard %s: %w", id, err)
	}
	return nil
}

// ListUsers returns the users a dashboard can be shared with
func (a *API) ListUsers(ctx context.Context) ([]resource.User, error) {
	var out []resource.User
	if err := a.get(ctx, UsersPath, &out); err != nil {
		return nil, fmt.Errorf("list %s users: %w", a.endpoint.Name, err)
	}
	return out, nil
}

func (a *API) get(ctx context.Context, path string, v any) error {
	res, err := a.client.Do(ctx, client.Request{
		Endpoint: a.endpoint,
		Method:   http.MethodGet,
		Path:     path,
	})
	if err != nil {
		return err
	}
	return res.Decode(v)
}

func dashboardPath(id string) string {
	return DashboardsPath + "/" + url.PathEscape(id)
}

// decodeOptional tolerates empty write responses
func decodeOptional(res *client.Result) (*resource.Resource, error) {
	if len(res.Body) == 0 {
		return nil, nil
	}
	var out resource.Resource
	if err := res.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
