package logging

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mongo2csv/internal/common"
)

func TestNew(t *testing.T) {
	var buf bytes.Buffer

	logger, err := New(&buf, "")
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())

	logger.Debug("hidden")
	logger.WithField("rows", 3).Info("Finished 3 rows")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `msg="Finished 3 rows"`)
	assert.Contains(t, out, "rows=3")
	assert.Contains(t, out, "level=info")
}

func TestNew_Levels(t *testing.T) {
	logger, err := New(&bytes.Buffer{}, "debug")
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	_, err = New(&bytes.Buffer{}, "loud")
	var cfgErr *common.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}
