package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter(t *testing.T) {
	tcases := []struct {
		name      string
		level     string
		logDebug  bool
		expectOut bool
	}{
		{name: "debug level emits debug", level: "debug", logDebug: true, expectOut: true},
		{name: "info level drops debug", level: "info", logDebug: true, expectOut: false},
		{name: "unknown level falls back to info", level: "chatty", logDebug: false, expectOut: true},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := NewWithWriter(buf, tc.level, FormatJSON)
			if tc.logDebug {
				logger.Debug().Msg("hello")
			} else {
				logger.Info().Msg("hello")
			}

			if !tc.expectOut {
				assert.Empty(t, buf.String())
				return
			}

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, "hello", entry["message"])
			assert.Equal(t, "go-roomchat", entry["service"])
		})
	}
}
