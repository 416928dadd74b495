package client_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totegamma/portfolio"
	"github.com/totegamma/portfolio/client"
	"github.com/totegamma/portfolio/internal/config"
	"github.com/totegamma/portfolio/internal/infra/database"
	"github.com/totegamma/portfolio/internal/infra/repository"
	"github.com/totegamma/portfolio/internal/metrics"
	"github.com/totegamma/portfolio/internal/present/rest"
	"github.com/totegamma/portfolio/internal/present/rest/middleware"
	"github.com/totegamma/portfolio/internal/service"
	"github.com/totegamma/portfolio/internal/usecase"
)

const secret = "client-secret"

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.NewSQLite(fmt.Sprintf("file:client_%s?mode=memory&cache=shared", name), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	reg := prometheus.NewRegistry()
	uc := usecase.NewCaseStudyUsecase(
		repository.NewCaseStudyRepository(db),
		usecase.WithMetrics(metrics.New(reg)),
		usecase.WithWriteOptions(usecase.WriteOptions{
			StorageAttempts: 3,
			ConfirmAttempts: 3,
			ConfirmTimeout:  time.Second,
			BackoffInitial:  time.Millisecond,
		}),
	)

	e := echo.New()
	e.Use(middleware.NewAuthMiddleware(service.NewAuthService(config.Auth{JwtSecret: secret, DefaultRole: "editor"})).IdentifyIdentity)
	rest.NewHandler(uc, nil, reg, zerolog.Nop()).RegisterRoutes(e)

	srv := httptest.NewServer(e)
	t.Cleanup(func() {
		srv.Close()
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return srv
}

func tokenFor(t *testing.T, subject string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestClientRoundTrip(t *testing.T) {
	srv := newServer(t)
	c := client.New(srv.URL, client.WithToken(tokenFor(t, "user-1")))
	ctx := context.Background()

	created, err := c.Create(ctx, portfolio.CreateRequest{
		Title:    "Harbour redesign",
		Status:   portfolio.StatusPublished,
		Sections: portfolio.Sections{{Enabled: true, Body: portfolio.HeroSection{Title: "H"}}},
	})
	require.NoError(t, err)
	id := created.CaseStudy.ID

	got, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, created.CaseStudy.Sections, got.Sections)

	title := "B"
	updated, err := c.Update(ctx, id, portfolio.UpdateRequest{Title: &title, ExpectedUpdatedAt: &got.UpdatedAt})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.CaseStudy.CurrentVersion)

	stale := "C"
	_, err = c.Update(ctx, id, portfolio.UpdateRequest{Title: &stale, ExpectedUpdatedAt: &got.UpdatedAt})
	assert.ErrorIs(t, err, portfolio.ErrConflict)

	versions, err := c.Versions(ctx, id)
	require.NoError(t, err)
	assert.Len(t, versions, 2)

	v1, err := c.Version(ctx, id, 1)
	require.NoError(t, err)
	assert.Equal(t, "Harbour redesign", v1.Title)

	restored, err := c.Restore(ctx, id, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "Harbour redesign", restored.CaseStudy.Title)

	require.NoError(t, c.RecordView(ctx, id))

	list, err := c.List(ctx, portfolio.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	hits, err := c.Search(ctx, "harbour", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, id, hits[0].CaseStudy.ID)

	require.NoError(t, c.Delete(ctx, id))
	_, err = c.Get(ctx, id)
	assert.ErrorIs(t, err, portfolio.ErrNotFound)
}

func TestClientDecodesErrorKinds(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()

	anonymous := client.New(srv.URL)
	_, err := anonymous.Create(ctx, portfolio.CreateRequest{Title: "A"})
	assert.ErrorIs(t, err, portfolio.ErrAuthorization)

	c := client.New(srv.URL, client.WithToken(tokenFor(t, "user-1")))
	_, err = c.Create(ctx, portfolio.CreateRequest{Title: " "})
	var ve portfolio.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "title", ve.Field)

	_, err = c.Version(ctx, "missing", 1)
	assert.ErrorIs(t, err, portfolio.ErrNotFound)
}

func TestClientTransportErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := client.New(url).Get(context.Background(), "cs-1")
	assert.ErrorIs(t, err, portfolio.ErrStorage)
	assert.True(t, portfolio.IsRetryable(err))
}
