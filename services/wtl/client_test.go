package wtlsvc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wtlassist/backend/core"
	"github.com/wtlassist/backend/core/wtl"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(core.WTLConfig{BaseURL: srv.URL + "/", APIKey: "key", Timeout: 5 * time.Second})
}

func TestClient_Headers(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.Equal(t, "key", r.Header.Get("X-API-Key"))
		assert.Equal(t, "/users", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "50", r.URL.Query().Get("per_page"))
		_, _ = w.Write([]byte(`[]`))
	})
	users, err := c.ListUsers(context.Background(), 2, 50)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestClient_ListUsers(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bare array", `[{"id": 1, "email": "ADA@example.com", "first_name": "Ada", "last_name": "L", "role": "teacher", "active": true}]`},
		{"data", `{"data": [{"id": "1", "email": "ada@example.com", "firstname": "Ada", "lastname": "L", "role_type": "teacher", "is_active": 1}]}`},
		{"resource key", `{"users": [{"user_id": 1, "email": "ada@example.com", "firstName": "Ada", "lastName": "L", "type": "teacher"}]}`},
		{"nested data", `{"data": {"data": [{"id": 1, "email": "ada@example.com", "first_name": "Ada", "last_name": "L", "role": "teacher", "status": "active"}], "total": 1}}`},
		{"nested items", `{"data": {"items": [{"id": 1, "email": "ada@example.com", "first_name": "Ada", "last_name": "L", "role": "teacher"}]}}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			})
			users, err := c.ListUsers(context.Background(), 1, 10)
			require.NoError(t, err)
			require.Len(t, users, 1)
			assert.Equal(t, wtl.User{ID: 1, Email: "ada@example.com", FirstName: "Ada", LastName: "L", Role: "teacher", Active: true}, users[0])
		})
	}
}

func TestClient_InactiveUser(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items": [{"id": 3, "name": "Bob", "status": "suspended"}, {"id": 4, "name": "Eve", "active": false}]}`))
	})
	users, err := c.ListUsers(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.False(t, users[0].Active)
	assert.Equal(t, "Bob", users[0].FullName())
	assert.False(t, users[1].Active)
}

func TestClient_ListCourses(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"courses": [{"id": "12", "name": "Go", "status": "Published", "start_date": "2024-01-15", "ends_at": "2024-06-30T12:00:00Z"}]}`))
	})
	courses, err := c.ListCourses(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, courses, 1)
	co := courses[0]
	assert.Equal(t, int64(12), co.ID)
	assert.Equal(t, "Go", co.Title)
	assert.Equal(t, "published", co.Status)
	require.NotNil(t, co.StartsAt)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), *co.StartsAt)
	require.NotNil(t, co.EndsAt)
	assert.Equal(t, time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC), *co.EndsAt)
}

func TestClient_ListLessons(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/courses/12/lessons", r.URL.Path)
		_, _ = w.Write([]byte(`{"lessons": [{"id": 5, "title": "Intro", "order": "2"}, {"lesson_id": 6, "title": "Next", "course_id": 99}]}`))
	})
	lessons, err := c.ListLessons(context.Background(), 12)
	require.NoError(t, err)
	require.Len(t, lessons, 2)
	assert.Equal(t, wtl.Lesson{ID: 5, CourseID: 12, Title: "Intro", Position: 2}, lessons[0])
	assert.Equal(t, int64(99), lessons[1].CourseID)
}

func TestClient_ListCourseUsers(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/courses/12/users", r.URL.Path)
		_, _ = w.Write([]byte(`{"data": [{"user_id": "7", "role": "student"}, {"user": {"id": 8}, "role_type": "teacher"}, {"id": 9}]}`))
	})
	members, err := c.ListCourseUsers(context.Background(), 12)
	require.NoError(t, err)
	assert.Equal(t, []wtl.Member{{UserID: 7, Role: "student"}, {UserID: 8, Role: "teacher"}, {UserID: 9}}, members)
}

func TestClient_Errors(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		_, err := c.ListCourseUsers(context.Background(), 1)
		assert.Equal(t, wtl.ErrNotFound, err)
	})

	t.Run("server error", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down"))
		})
		_, err := c.ListUsers(context.Background(), 1, 10)
		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusBadGateway, statusErr.Status)
		assert.Equal(t, "upstream down", statusErr.Body)
	})

	t.Run("no list", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"message": "ok"}`))
		})
		_, err := c.ListUsers(context.Background(), 1, 10)
		assert.Error(t, err)
	})

	t.Run("empty body", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
		users, err := c.ListUsers(context.Background(), 1, 10)
		require.NoError(t, err)
		assert.Empty(t, users)
	})
}
