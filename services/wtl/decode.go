package wtlsvc

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/wtlassist/backend/core/wtl"
)

// record is one item of a WTL list payload. Field names vary across endpoints & API versions.
type record map[string]json.RawMessage

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"}

// decodeList extracts the records of a list payload: a bare array, or an object holding the list
// under "data", "items", the resource name, or "data.data" / "data.items".
func decodeList(body []byte, resource string) ([]record, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return []record{}, nil
	}
	if body[0] == '[' {
		return decodeArray(body)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, err
	}
	for _, key := range []string{"data", "items", resource} {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) > 0 && raw[0] == '[' {
			return decodeArray(raw)
		}
		if key == "data" && len(raw) > 0 && raw[0] == '{' {
			var nested map[string]json.RawMessage
			if err := json.Unmarshal(raw, &nested); err != nil {
				return nil, err
			}
			for _, nestedKey := range []string{"data", "items", resource} {
				if inner, ok := nested[nestedKey]; ok {
					return decodeArray(inner)
				}
			}
		}
	}
	return nil, errors.Errorf("no %s list in payload", resource)
}

func decodeArray(raw []byte) ([]record, error) {
	records := make([]record, 0)
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// raw returns the first present, non-null field among keys.
func (r record) raw(keys ...string) (json.RawMessage, bool) {
	for _, key := range keys {
		if v, ok := r[key]; ok && !bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return v, true
		}
	}
	return nil, false
}

// int64 reads a number that may be encoded as a JSON number or string.
func (r record) int64(keys ...string) int64 {
	v, ok := r.raw(keys...)
	if !ok {
		return 0
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return int64(f)
		}
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		if i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return i
		}
	}
	return 0
}

func (r record) string(keys ...string) string {
	v, ok := r.raw(keys...)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return strings.TrimSpace(s)
	}
	// numbers & booleans
	return strings.Trim(strings.TrimSpace(string(v)), `"`)
}

// bool reads true/false, 1/0, "true"/"active"/"yes". Missing fields are def.
func (r record) bool(def bool, keys ...string) bool {
	v, ok := r.raw(keys...)
	if !ok {
		return def
	}
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return b
	}
	switch strings.ToLower(r.string(keys...)) {
	case "1", "true", "yes", "active", "enabled":
		return true
	case "0", "false", "no", "inactive", "disabled", "suspended", "deleted":
		return false
	}
	return def
}

func (r record) time(keys ...string) *time.Time {
	s := r.string(keys...)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func (r record) object(keys ...string) record {
	v, ok := r.raw(keys...)
	if !ok {
		return nil
	}
	var obj record
	if err := json.Unmarshal(v, &obj); err != nil {
		return nil
	}
	return obj
}

func (r record) user() wtl.User {
	first, last := r.string("first_name", "firstname", "firstName"), r.string("last_name", "lastname", "lastName")
	if first == "" && last == "" {
		first = r.string("name", "full_name", "fullname")
	}
	return wtl.User{
		ID:        r.int64("id", "user_id", "userId"),
		Email:     strings.ToLower(r.string("email", "mail")),
		Username:  r.string("username", "login", "user_name"),
		FirstName: first,
		LastName:  last,
		Role:      r.string("role", "role_type", "roleType", "type"),
		Active:    r.bool(true, "active", "is_active", "isActive", "status"),
	}
}

func (r record) course() wtl.Course {
	return wtl.Course{
		ID:          r.int64("id", "course_id", "courseId"),
		Title:       r.string("title", "name"),
		Description: r.string("description", "summary"),
		Status:      strings.ToLower(r.string("status", "state")),
		StartsAt:    r.time("starts_at", "start_date", "startDate", "start_at"),
		EndsAt:      r.time("ends_at", "end_date", "endDate", "end_at"),
	}
}

func (r record) lesson() wtl.Lesson {
	return wtl.Lesson{
		ID:          r.int64("id", "lesson_id", "lessonId"),
		CourseID:    r.int64("course_id", "courseId"),
		Title:       r.string("title", "name"),
		Description: r.string("description", "summary"),
		Position:    int(r.int64("position", "order", "sort_order", "sortOrder")),
		PublishedAt: r.time("published_at", "publishedAt", "publish_date"),
	}
}

// member reads a course membership; the user may be nested under "user".
func (r record) member() wtl.Member {
	m := wtl.Member{
		UserID: r.int64("user_id", "userId"),
		Role:   r.string("role", "role_type", "roleType", "type"),
	}
	if m.UserID == 0 {
		if nested := r.object("user"); nested != nil {
			m.UserID = nested.int64("id", "user_id")
			if m.Role == "" {
				m.Role = nested.string("role", "role_type", "type")
			}
		} else {
			m.UserID = r.int64("id")
		}
	}
	return m
}
