package format

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rzbill/agentdeploy/pkg/types"
)

func TestPlainOutputWhenColorDisabled(t *testing.T) {
	EnableColor(false)
	defer EnableColor(false)

	assert.Equal(t, "done 3", Success("done %d", 3))
	assert.Equal(t, "READY", StatusLabel("READY"))
	assert.Equal(t, "name: demo", Label("name", "demo"))
	assert.False(t, IsColorEnabled())
}

func TestWriteCheckReportCountsFailures(t *testing.T) {
	EnableColor(false)
	var buf bytes.Buffer
	failures := WriteCheckReport(&buf, "Checks", []CheckLine{
		{Name: "credentials", Status: CheckPass, Detail: "ok"},
		{Name: "bucket", Status: CheckFail, Detail: "missing", Hint: "create it"},
		{Name: "role", Status: CheckWarn, Detail: "unknown"},
	})

	assert.Equal(t, 1, failures)
	out := buf.String()
	assert.Contains(t, out, "hint: create it")
	assert.Contains(t, out, "1 check(s) failed")
}

func TestErrorHint(t *testing.T) {
	assert.Empty(t, ErrorHint(nil))
	assert.Contains(t, ErrorHint(fmt.Errorf("x: %w", types.ErrReservedEndpoint)), "DEFAULT")
	assert.Contains(t, ErrorHint(&types.PreconditionError{What: "bucket"}), "agentdeploy check")
}
