package persist

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestLogger checks that the basic functions of the file logger work as
// designed: a STARTUP banner on open, the caller's own lines in between,
// and a SHUTDOWN banner on Close.
func TestLogger(t *testing.T) {
	logFilename := filepath.Join(t.TempDir(), "test.log")
	fl, err := NewLogger(logFilename)
	assert.NoError(t, err)

	fl.Println("TEST: this should get written to the logfile")
	assert.NoError(t, fl.Close())

	fileData, err := os.ReadFile(logFilename)
	assert.NoError(t, err)

	fileLines := strings.Split(string(fileData), "\n")
	assert.Len(t, fileLines, 4, "three banner/message lines plus the trailing newline's empty segment")
	assert.Contains(t, fileLines[0], "STARTUP")
	assert.Contains(t, fileLines[1], "TEST")
	assert.Contains(t, fileLines[2], "SHUTDOWN")
	assert.Empty(t, fileLines[3])
}

func TestLoggerCloseTwiceErrorsOnSecondCall(t *testing.T) {
	logFilename := filepath.Join(t.TempDir(), "test.log")
	fl, err := NewLogger(logFilename)
	assert.NoError(t, err)

	assert.NoError(t, fl.Close())
	assert.Error(t, fl.Close(), "closing an already-closed file must surface an error, matching os.File")
}

func TestLoggerWriterExposesUnderlyingFile(t *testing.T) {
	logFilename := filepath.Join(t.TempDir(), "test.log")
	fl, err := NewLogger(logFilename)
	assert.NoError(t, err)
	defer fl.Close()

	assert.NotNil(t, fl.Writer())
}
