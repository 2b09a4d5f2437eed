package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	keyFile := filepath.Join(dir, "key")
	require.NoError(t, os.WriteFile(keyFile, []byte("  from-file\n"), 0o600))
	emptyFile := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(emptyFile, []byte("\n"), 0o600))

	tests := []struct {
		name          string
		src           Source
		expect        string
		notConfigured bool
		wantErr       bool
	}{
		{name: "inline value", src: Source{Name: "azure api key", Value: " inline "}, expect: "inline"},
		{name: "file wins over value", src: Source{Value: "inline", File: keyFile}, expect: "from-file"},
		{name: "nothing configured", src: Source{Name: "azure api key"}, notConfigured: true, wantErr: true},
		{name: "empty file", src: Source{File: emptyFile}, notConfigured: true, wantErr: true},
		{name: "missing file", src: Source{File: filepath.Join(dir, "absent")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Load(tt.src)
			if !tt.wantErr {
				require.NoError(t, err)
				require.Equal(t, tt.expect, got)
				return
			}

			require.Error(t, err)
			if tt.notConfigured {
				require.ErrorIs(t, err, ErrNotConfigured)
			} else {
				require.NotErrorIs(t, err, ErrNotConfigured)
			}
		})
	}
}
