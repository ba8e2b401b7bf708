package logsvc

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/wtlassist/backend/core"
	"github.com/wtlassist/backend/core/user"
)

func TestRollbarLogger(t *testing.T) {
	var buf bytes.Buffer
	conf := core.NewTestConfig()
	logger := NewRollbarLogger(&buf, conf)

	logger.Warn("syncing WTL user", errors.New("boom"), map[string]interface{}{"wtl_user_id": 42}, user.User{ID: "u-1"})

	out := buf.String()
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, `"message":"syncing WTL user"`)
	assert.Contains(t, out, `"error":"boom"`)
	assert.Contains(t, out, `"wtl_user_id":42`)
	assert.Contains(t, out, `"user_id":"u-1"`)
}

func TestRollbarLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := NewRollbarLogger(&buf, core.NewTestConfig())

	logger.Debug("noisy")
	assert.Empty(t, buf.String())

	logger.Info("quiet")
	assert.Contains(t, buf.String(), "quiet")
}
