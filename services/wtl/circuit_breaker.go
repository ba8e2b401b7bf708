package wtlsvc

import (
	"context"
	"time"

	"github.com/pkg/errors"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/wtlassist/backend/core"
	"github.com/wtlassist/backend/core/wtl"
)

var _ wtl.API = (*CircuitBreakerClient)(nil) // interface compliance check

// CircuitBreakerClient stops calling WTL for a while once most recent requests failed.
// It opens when >= 60% of at least 10 requests (within a minute) failed, and half-opens after 2 minutes.
type CircuitBreakerClient struct {
	api    wtl.API
	cb     *gobreaker.CircuitBreaker[interface{}]
	logger core.Logger
}

func NewCircuitBreakerClient(api wtl.API, logger core.Logger) *CircuitBreakerClient {
	cbc := &CircuitBreakerClient{api: api, logger: logger}
	cbc.cb = gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        "wtl-api",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		// missing resources & cancelled syncs say nothing about WTL's health
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			cause := errors.Cause(err)
			return cause == wtl.ErrNotFound || cause == context.Canceled
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	})
	return cbc
}

// State returns the breaker state (closed, half-open, open).
func (cbc *CircuitBreakerClient) State() string {
	return cbc.cb.State().String()
}

func (cbc *CircuitBreakerClient) Ping(ctx context.Context) error {
	_, err := cbc.cb.Execute(func() (interface{}, error) {
		return nil, cbc.api.Ping(ctx)
	})
	return err
}

func (cbc *CircuitBreakerClient) ListUsers(ctx context.Context, page, size int) ([]wtl.User, error) {
	return execute[[]wtl.User](cbc, func() ([]wtl.User, error) { return cbc.api.ListUsers(ctx, page, size) })
}

func (cbc *CircuitBreakerClient) ListCourses(ctx context.Context, page, size int) ([]wtl.Course, error) {
	return execute[[]wtl.Course](cbc, func() ([]wtl.Course, error) { return cbc.api.ListCourses(ctx, page, size) })
}

func (cbc *CircuitBreakerClient) ListLessons(ctx context.Context, courseID int64) ([]wtl.Lesson, error) {
	return execute[[]wtl.Lesson](cbc, func() ([]wtl.Lesson, error) { return cbc.api.ListLessons(ctx, courseID) })
}

func (cbc *CircuitBreakerClient) ListCourseUsers(ctx context.Context, courseID int64) ([]wtl.Member, error) {
	return execute[[]wtl.Member](cbc, func() ([]wtl.Member, error) { return cbc.api.ListCourseUsers(ctx, courseID) })
}

// execute runs fn through the breaker and restores its result type.
func execute[T any](cbc *CircuitBreakerClient, fn func() (T, error)) (T, error) {
	var zero T
	result, err := cbc.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, errors.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}
