package buildinfo

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrintBuildData(t *testing.T) {
	origV, origD, origC := Version, Date, Commit
	t.Cleanup(func() { Version, Date, Commit = origV, origD, origC })

	Version, Date, Commit = "1.2.3", "2025-01-01", "abc"

	var buf bytes.Buffer
	PrintBuildData(&buf)

	assert.Equal(t, "Build version: 1.2.3\nBuild date: 2025-01-01\nBuild commit: abc\n", buf.String())
	assert.Equal(t, "stuffhappens-go/1.2.3", ClientInfo())
}
