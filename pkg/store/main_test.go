package store

import (
	"io"
	"os"
	"testing"

	"github.com/traceon/traceond/pkg/log"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
	os.Exit(m.Run())
}
