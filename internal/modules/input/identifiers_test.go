package input

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/recordsift/recordsift/internal/errhandling"
	"github.com/recordsift/recordsift/pkg/job"
)

func TestParseIdentifiers(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		delimiter string
		want      []string
	}{
		{
			name:  "first field before colon",
			input: "alice:x\nbob:y\n",
			want:  []string{"alice", "bob"},
		},
		{
			name:  "only first delimiter splits",
			input: "alice:x:y:z\n",
			want:  []string{"alice"},
		},
		{
			name:  "line without delimiter is the identifier",
			input: "carol\n",
			want:  []string{"carol"},
		},
		{
			name:  "duplicates collapse",
			input: "alice:1\nalice:2\n",
			want:  []string{"alice"},
		},
		{
			name:  "blank lines and CRLF",
			input: "alice:1\r\n\r\n   \n bob:2 \r\n",
			want:  []string{"alice", "bob"},
		},
		{
			name:  "leading delimiter gives empty identifier",
			input: ":orphan\n",
			want:  []string{""},
		},
		{
			name:      "custom delimiter",
			input:     "alice;1\nbob;2",
			delimiter: ";",
			want:      []string{"alice", "bob"},
		},
		{
			name:  "empty input",
			input: "",
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := ParseIdentifiers(strings.NewReader(tt.input), tt.delimiter)
			if err != nil {
				t.Fatalf("ParseIdentifiers() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, ids.Sorted()); diff != "" {
				t.Errorf("ParseIdentifiers() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseIdentifiersFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, job.DefaultIdentifiersPath)
	if err := os.WriteFile(path, []byte("alice:x\nbob:y\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ids, err := ParseIdentifiersFile(path, ":")
	if err != nil {
		t.Fatalf("ParseIdentifiersFile() error = %v", err)
	}
	if ids.Len() != 2 || !ids.Has("alice") || !ids.Has("bob") {
		t.Errorf("ids = %v", ids.Sorted())
	}

	_, err = ParseIdentifiersFile(filepath.Join(dir, "missing.txt"), ":")
	if !errors.Is(err, errhandling.ErrResourceNotFound) {
		t.Errorf("missing file error = %v, want ErrResourceNotFound", err)
	}
}

func TestIdentifierFileDefaults(t *testing.T) {
	src := NewIdentifierFile(job.IdentifierSource{})
	if src.Source() != job.DefaultIdentifiersPath {
		t.Errorf("Source() = %q", src.Source())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.Load(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Load() with canceled context error = %v", err)
	}
}
