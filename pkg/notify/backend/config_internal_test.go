package backend

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		in   string
		want string
	}{
		{"~/.notify-hub/storage.db", filepath.Join(home, ".notify-hub/storage.db")},
		{"~", home},
		{"/var/lib/notify.db", "/var/lib/notify.db"},
		{"relative/notify.db", "relative/notify.db"},
		{"~other/notify.db", "~other/notify.db"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := expandHome(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
