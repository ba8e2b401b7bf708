package echoapi

import (
	"net/http"
	"reflect"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/wtlassist/backend/core"
	"github.com/wtlassist/backend/core/course"
	"github.com/wtlassist/backend/core/survey"
	"github.com/wtlassist/backend/core/syncrun"
	"github.com/wtlassist/backend/core/thread"
	"github.com/wtlassist/backend/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// sentinelStatuses maps the services' sentinel errors to HTTP statuses.
var sentinelStatuses = map[error]int{
	user.ErrNotFound:                http.StatusNotFound,
	user.ErrUsernameExists:          http.StatusConflict,
	user.ErrEmailExists:             http.StatusConflict,
	course.ErrNotFound:              http.StatusNotFound,
	course.ErrLessonNotFound:        http.StatusNotFound,
	thread.ErrNotFound:              http.StatusNotFound,
	thread.ErrNoteNotFound:          http.StatusNotFound,
	thread.ErrTaskNotFound:          http.StatusNotFound,
	thread.ErrChecklistItemNotFound: http.StatusNotFound,
	thread.ErrForbidden:             http.StatusForbidden,
	survey.ErrNotFound:              http.StatusNotFound,
	survey.ErrResponseNotFound:      http.StatusNotFound,
	survey.ErrFormsDisabled:         http.StatusServiceUnavailable,
	syncrun.ErrAlreadyRunning:       http.StatusConflict,
	syncrun.ErrUnknownKind:          http.StatusNotFound,
	syncrun.ErrRunNotFound:          http.StatusNotFound,
}

// sentinelStatus returns the status of a sentinel error, 0 for any other error.
// Errors of unhashable types (eg. validator.ValidationErrors) are never sentinels.
func sentinelStatus(err error) int {
	if err == nil || !reflect.TypeOf(err).Comparable() {
		return 0
	}
	return sentinelStatuses[err]
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		if status := sentinelStatus(cause); status != 0 {
			cause = echo.NewHTTPError(status, cause.Error())
		}

		switch origErr := cause.(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if fldErrs := origErr.FieldMap(); fldErrs != nil {
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			var usr user.User
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				usr.ID = claims.Subject
				usr.Username = claims.Username
				usr.Email = claims.Email
			}
			logger.Error(msg, errors.Wrap(err, msg), usr)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
