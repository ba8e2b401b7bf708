// Package wtlsvc is the client of the "Web To Learn" REST API.
package wtlsvc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/wtlassist/backend/core"
	"github.com/wtlassist/backend/core/wtl"
)

const maxErrorBody = 512

var _ wtl.API = (*Client)(nil) // interface compliance check

// Client calls the WTL API. Requests are rate limited and authenticated with the API key.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(conf core.WTLConfig) *Client {
	timeout := conf.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if conf.RequestsPerSecond > 0 {
		limit = rate.Limit(conf.RequestsPerSecond)
	}
	burst := int(conf.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}

	return &Client{
		baseURL:    strings.TrimSuffix(conf.BaseURL, "/"),
		apiKey:     conf.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
	}
}

// StatusError is returned for non-2xx answers other than 404.
type StatusError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("wtl %s returned status %d: %s", e.Endpoint, e.Status, e.Body)
}

// get fetches endpoint and returns the response body. 404 is wtl.ErrNotFound.
func (c *Client) get(ctx context.Context, endpoint string, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "waiting for rate limiter")
	}

	u := c.baseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "wtl %s request failed", endpoint)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "reading wtl %s response", endpoint)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, wtl.ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &StatusError{Endpoint: endpoint, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

func pageQuery(page, size int) url.Values {
	q := make(url.Values)
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(size))
	q.Set("limit", strconv.Itoa(size))
	return q
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.get(ctx, "/users", pageQuery(1, 1))
	return err
}

func (c *Client) ListUsers(ctx context.Context, page, size int) ([]wtl.User, error) {
	body, err := c.get(ctx, "/users", pageQuery(page, size))
	if err != nil {
		return nil, err
	}
	records, err := decodeList(body, "users")
	if err != nil {
		return nil, errors.Wrap(err, "decoding wtl users")
	}
	users := make([]wtl.User, 0, len(records))
	for _, r := range records {
		users = append(users, r.user())
	}
	return users, nil
}

func (c *Client) ListCourses(ctx context.Context, page, size int) ([]wtl.Course, error) {
	body, err := c.get(ctx, "/courses", pageQuery(page, size))
	if err != nil {
		return nil, err
	}
	records, err := decodeList(body, "courses")
	if err != nil {
		return nil, errors.Wrap(err, "decoding wtl courses")
	}
	courses := make([]wtl.Course, 0, len(records))
	for _, r := range records {
		courses = append(courses, r.course())
	}
	return courses, nil
}

func (c *Client) ListLessons(ctx context.Context, courseID int64) ([]wtl.Lesson, error) {
	body, err := c.get(ctx, fmt.Sprintf("/courses/%d/lessons", courseID), nil)
	if err != nil {
		return nil, err
	}
	records, err := decodeList(body, "lessons")
	if err != nil {
		return nil, errors.Wrap(err, "decoding wtl lessons")
	}
	lessons := make([]wtl.Lesson, 0, len(records))
	for _, r := range records {
		l := r.lesson()
		if l.CourseID == 0 {
			l.CourseID = courseID
		}
		lessons = append(lessons, l)
	}
	return lessons, nil
}

func (c *Client) ListCourseUsers(ctx context.Context, courseID int64) ([]wtl.Member, error) {
	body, err := c.get(ctx, fmt.Sprintf("/courses/%d/users", courseID), nil)
	if err != nil {
		return nil, err
	}
	records, err := decodeList(body, "users")
	if err != nil {
		return nil, errors.Wrap(err, "decoding wtl course users")
	}
	members := make([]wtl.Member, 0, len(records))
	for _, r := range records {
		members = append(members, r.member())
	}
	return members, nil
}
