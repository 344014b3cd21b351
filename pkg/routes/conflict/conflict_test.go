package conflict

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/willow/internal/testutil/servicetest"
	"github.com/Ramsey-B/willow/pkg/importing"
	"github.com/Ramsey-B/willow/pkg/middleware"
	"github.com/Ramsey-B/willow/pkg/models"
)

// productionConflict stores a conflict between two production persons,
// which has no owning package.
func productionConflict(t *testing.T, env *servicetest.Env) (*models.ConflictResolution, *models.Person, *models.Person) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	born := time.Date(1980, 1, 2, 0, 0, 0, 0, time.UTC)

	newPerson := func(first string) *models.Person {
		p := &models.Person{
			ProductionBase: models.NewProductionBase(nil, "seed", now),
			PersonFields: models.PersonFields{
				FirstName:   first,
				LastName:    "Khalil",
				DateOfBirth: &born,
			},
		}
		require.NoError(t, env.Production.Insert(ctx, p))
		return p
	}
	a, b := newPerson("Rami"), newPerson("Ramy")

	c := models.NewConflict(models.ConflictTypePersonDuplicate, models.EntityKindPerson, nil, a.ID, b.ID, 0.93, []string{"name_similarity=0.93"}, "seed", now)
	require.NoError(t, env.Conflicts.Create(ctx, c))
	return c, a, b
}

func newServer(t *testing.T) (*echo.Echo, *servicetest.Env) {
	t.Helper()
	env := servicetest.New(t)
	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(env.Logger)
	e.Use(middleware.Context())
	NewHandler(env.Service, env.Logger).Register(e.Group("/api/v1/conflicts"))
	return e, env
}

func post(e *echo.Echo, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(middleware.HeaderUserID, "operator-3")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Get(t *testing.T) {
	e, env := newServer(t)
	c, a, b := productionConflict(t, env)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/conflicts/"+c.ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var detail struct {
		First  models.ConflictSide `json:"first"`
		Second models.ConflictSide `json:"second"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, a.ID, detail.First.EntityID)
	assert.True(t, detail.First.Found)
	assert.False(t, detail.First.InStaging)
	assert.Equal(t, b.ID, detail.Second.EntityID)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/conflicts/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_Resolve(t *testing.T) {
	e, env := newServer(t)
	c, a, b := productionConflict(t, env)
	path := "/api/v1/conflicts/" + c.ID.String() + "/resolve"

	t.Run("merge requires a master", func(t *testing.T) {
		rec := post(e, path, `{"action":"Merge"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown action", func(t *testing.T) {
		rec := post(e, path, `{"action":"Delete"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("merge", func(t *testing.T) {
		rec := post(e, path, `{"action":"Merge","master_id":"`+a.ID.String()+`","reason":"same person"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var result importing.ResolveResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		require.NotNil(t, result.Merge)
		assert.True(t, result.Merge.Success)
		assert.Equal(t, models.MergeCaseProductionProduction, result.Merge.Case)
		assert.False(t, result.Conflict.IsPending())

		_, ok, err := env.Production.Persons.GetByID(context.Background(), b.ID)
		require.NoError(t, err)
		assert.False(t, ok, "discarded person is soft deleted")
	})

	t.Run("already resolved", func(t *testing.T) {
		rec := post(e, "/api/v1/conflicts/"+c.ID.String()+"/ignore", `{"reason":"late"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}
