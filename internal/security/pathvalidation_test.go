package security

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/forestline/corridor/internal/failure"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	tmpDir := t.TempDir()

	safeDir := filepath.Join(tmpDir, "safe")
	unsafeDir := filepath.Join(tmpDir, "unsafe")
	for _, d := range []string{safeDir, unsafeDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatalf("Failed to create %s: %v", d, err)
		}
	}
	// a symlink inside the safe directory pointing out of it
	if err := os.Symlink(unsafeDir, filepath.Join(safeDir, "evil-symlink")); err != nil {
		t.Fatalf("Failed to create symlink: %v", err)
	}

	tests := []struct {
		name      string
		filePath  string
		wantError bool
	}{
		{"file in directory", filepath.Join(safeDir, "cost_1_0.png"), false},
		{"nested new file", filepath.Join(safeDir, "sub", "mask_1_0.png"), false},
		{"dot dot escape", filepath.Join(safeDir, "..", "file.png"), true},
		{"sibling directory", filepath.Join(unsafeDir, "file.png"), true},
		{"through symlink", filepath.Join(safeDir, "evil-symlink", "new.png"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.filePath, safeDir)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidatePathWithinDirectory(%q) error = %v, wantError %v", tt.filePath, err, tt.wantError)
			}
			if err != nil && !errors.Is(err, ErrTraversal) {
				t.Errorf("error %v is not ErrTraversal", err)
			}
		})
	}
}

func TestValidateOutputPath(t *testing.T) {
	dir := t.TempDir()
	lines := filepath.Join(dir, "lines.gpkg")
	if err := os.WriteFile(lines, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link.gpkg")
	if err := os.Symlink(lines, link); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		output  string
		inputs  []string
		wantErr error
	}{
		{"new output", filepath.Join(dir, "out.gpkg"), []string{lines, ""}, nil},
		{"empty output", " ", []string{lines}, failure.ErrInput},
		{"same file", lines, []string{filepath.Join(dir, "chm.tif"), lines}, ErrOutputIsInput},
		{"dot segments", filepath.Join(dir, "sub", "..", "lines.gpkg"), []string{lines}, ErrOutputIsInput},
		{"symlink to input", link, []string{lines}, ErrOutputIsInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOutputPath(tt.output, tt.inputs...)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, failure.ErrInput) {
				t.Errorf("error = %v is not an input error", err)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"cost", "cost"},
		{"../../etc", "etc"},
		{"corridor mask/1", "corridor_mask_1"},
		{"a__b", "a__b"},
		{"", "unknown"},
		{"...", "unknown"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
