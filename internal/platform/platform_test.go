package platform_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lherron/cfgsync/internal/client"
	"github.com/lherron/cfgsync/internal/platform"
	"github.com/lherron/cfgsync/internal/platformtest"
)

func newAPI(srv *platformtest.Server) *platform.API {
	c := client.New(client.Options{
		RequestTimeout: time.Second,
		RetryAttempts:  3,
		BaseDelay:      time.Millisecond,
		Logger:         zerolog.Nop(),
	})
	return platform.New(c, client.Endpoint{Name: "target", BaseURL: srv.URL, Token: platformtest.Token, VerifySSL: true})
}

func TestDashboardLifecycle(t *testing.T) {
	srv := platformtest.New(t)
	api := newAPI(srv)
	ctx := context.Background()

	created, err := api.CreateDashboard(ctx, platformtest.Dashboard("d-1", "CPU"))
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, "d-1", created.ID)

	list, err := api.ListDashboards(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "CPU", list[0].Title)

	got, err := api.GetDashboard(ctx, "d-1")
	require.NoError(t, err)
	widgets, err := got.Widgets()
	require.NoError(t, err)
	assert.Len(t, widgets, 1)

	got.Title = "CPU v2"
	_, err = api.UpdateDashboard(ctx, "d-1", got)
	require.NoError(t, err)
	got, err = api.GetDashboard(ctx, "d-1")
	require.NoError(t, err)
	assert.Equal(t, "CPU v2", got.Title)

	require.NoError(t, api.DeleteDashboard(ctx, "d-1"))
	list, err = api.ListDashboards(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestListUsers(t *testing.T) {
	srv := platformtest.New(t)
	srv.AddUser("u-1", "a@x.com")
	api := newAPI(srv)

	users, err := api.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "a@x.com", users[0].Email)
}

func TestWrongTokenIsFatal(t *testing.T) {
	srv := platformtest.New(t)
	srv.SetToken("other")
	api := newAPI(srv)

	_, err := api.ListDashboards(context.Background())
	require.Error(t, err)
	assert.True(t, client.IsFatal(err))
}

func TestGetMissingDashboardIsRejected(t *testing.T) {
	srv := platformtest.New(t)
	api := newAPI(srv)

	_, err := api.GetDashboard(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, client.KindRejected, client.KindOf(err))
}
