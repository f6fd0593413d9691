package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitWithWriterLevels(t *testing.T) {
	var buf bytes.Buffer

	InitWithWriter(&buf, false)
	Get().Debug("hidden")
	Get().Info("shown", "device", "cam0")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "device=cam0")

	buf.Reset()
	InitWithWriter(&buf, true)
	Get().Debug("visible now")
	assert.Contains(t, buf.String(), "visible now")
}
