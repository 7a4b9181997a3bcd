package security

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	tmpDir := t.TempDir()

	safeDir := filepath.Join(tmpDir, "exports")
	outsideDir := filepath.Join(tmpDir, "outside")
	for _, d := range []string{safeDir, outsideDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatalf("failed to create %s: %v", d, err)
		}
	}

	outsideFile := filepath.Join(outsideDir, "secret.txt")
	if err := os.WriteFile(outsideFile, []byte("secret"), 0644); err != nil {
		t.Fatalf("failed to create file: %v", err)
	}

	// Symlink inside the safe dir pointing out of it.
	symlinkPath := filepath.Join(safeDir, "escape")
	if err := os.Symlink(outsideDir, symlinkPath); err != nil {
		t.Fatalf("failed to create symlink: %v", err)
	}

	tests := []struct {
		name      string
		filePath  string
		safeDir   string
		wantError bool
	}{
		{
			name:     "path within directory",
			filePath: filepath.Join(safeDir, "hotspots.svg"),
			safeDir:  safeDir,
		},
		{
			name:     "nested path within directory",
			filePath: filepath.Join(safeDir, "maps", "hotspots.svg"),
			safeDir:  safeDir,
		},
		{
			name:      "dotdot traversal",
			filePath:  filepath.Join(safeDir, "..", "hotspots.svg"),
			safeDir:   safeDir,
			wantError: true,
		},
		{
			name:      "relative traversal from outside",
			filePath:  "../../../etc/passwd",
			safeDir:   safeDir,
			wantError: true,
		},
		{
			name:      "absolute path outside safe dir",
			filePath:  "/etc/passwd",
			safeDir:   safeDir,
			wantError: true,
		},
		{
			name:      "symlink pointing out of safe dir",
			filePath:  filepath.Join(symlinkPath, "secret.txt"),
			safeDir:   safeDir,
			wantError: true,
		},
		{
			name:      "symlink itself",
			filePath:  symlinkPath,
			safeDir:   safeDir,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.filePath, tt.safeDir)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidatePathWithinDirectory() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestValidatePathWithinAllowedDirs(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := t.TempDir()

	tests := []struct {
		name        string
		filePath    string
		allowedDirs []string
		wantError   bool
	}{
		{
			name:        "path in first allowed dir",
			filePath:    filepath.Join(dir1, "hotspots.svg"),
			allowedDirs: []string{dir1, dir2},
		},
		{
			name:        "path in second allowed dir",
			filePath:    filepath.Join(dir2, "hotspots.svg"),
			allowedDirs: []string{dir1, dir2},
		},
		{
			name:        "path outside all dirs",
			filePath:    "/etc/passwd",
			allowedDirs: []string{dir1, dir2},
			wantError:   true,
		},
		{
			name:        "no allowed directories",
			filePath:    filepath.Join(dir1, "hotspots.svg"),
			allowedDirs: []string{},
			wantError:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinAllowedDirs(tt.filePath, tt.allowedDirs)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidatePathWithinAllowedDirs() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestValidateExportPath(t *testing.T) {
	originalWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	tmpDir := t.TempDir()

	tests := []struct {
		name      string
		filePath  string
		workDir   string
		wantError bool
	}{
		{
			name:     "path in temp dir",
			filePath: filepath.Join(os.TempDir(), "hotspots.svg"),
			workDir:  originalWd,
		},
		{
			name:     "relative path in working dir",
			filePath: "hotspots.svg",
			workDir:  tmpDir,
		},
		{
			name:      "absolute path elsewhere",
			filePath:  "/etc/passwd",
			workDir:   originalWd,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.workDir != originalWd {
				if err := os.Chdir(tt.workDir); err != nil {
					t.Fatalf("failed to change directory: %v", err)
				}
				t.Cleanup(func() {
					if err := os.Chdir(originalWd); err != nil {
						t.Errorf("failed to restore directory: %v", err)
					}
				})
			}

			err := ValidateExportPath(tt.filePath)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidateExportPath() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}
