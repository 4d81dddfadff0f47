package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := WithRun(New(&buf, FormatJSON, false), "run-1")

	log.Debug().Msg("hidden")
	log.Warn().Str("file", "01-bf.tif").Msg("excluded")

	var event map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &event))
	assert.Equal(t, "warn", event["level"])
	assert.Equal(t, "run-1", event["run"])
	assert.Equal(t, "01-bf.tif", event["file"])
	assert.Contains(t, event, "time")
}

func TestNew_VerboseConsole(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, FormatConsole, true)

	log.Debug().Str("uid", "02-2").Msg("composed")
	assert.Contains(t, buf.String(), "composed")
	assert.Contains(t, buf.String(), "02-2")
}
