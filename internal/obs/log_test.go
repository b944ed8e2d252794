package obs

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger("crm-api", "test", "loud", "json")
	require.Error(t, err)
}

func TestSetLoggerRestores(t *testing.T) {
	orig := Logger()
	l := zap.NewExample()
	restore := SetLogger(l)
	require.Same(t, l, Logger())
	restore()
	require.Same(t, orig, Logger())
}
