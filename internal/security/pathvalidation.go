// Package security validates the file paths the tools write to.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/forestline/corridor/internal/failure"
)

var (
	// ErrOutputIsInput is returned when an output path resolves to one of
	// the tool's input files.
	ErrOutputIsInput = errors.New("output would overwrite an input")
	// ErrTraversal is returned when a path escapes its directory.
	ErrTraversal = errors.New("path escapes its directory")
)

// canonical resolves a path to an absolute path with symlinks evaluated.
// For a path that does not exist yet the nearest existing parent is
// resolved and the remainder joined back on, so a symlinked parent
// directory cannot hide where the file really lands.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	for dir := filepath.Dir(abs); ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rel, _ := filepath.Rel(dir, abs)
			return filepath.Join(resolved, rel), nil
		}
		if filepath.Dir(dir) == dir {
			return abs, nil
		}
	}
}

// ValidatePathWithinDirectory checks that filePath stays inside dir once
// dot segments and symlinks are resolved.
func ValidatePathWithinDirectory(filePath, dir string) error {
	p, err := canonical(filePath)
	if err != nil {
		return err
	}
	d, err := canonical(dir)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(d, p)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrTraversal, filePath)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s leaves %s", ErrTraversal, filePath, dir)
	}
	return nil
}

// ValidateOutputPath rejects an empty output path and one that resolves to
// any of the inputs. Empty inputs are ignored.
func ValidateOutputPath(output string, inputs ...string) error {
	if strings.TrimSpace(output) == "" {
		return failure.Inputf("output path is empty")
	}
	out, err := canonical(output)
	if err != nil {
		return fmt.Errorf("%w: %w", failure.ErrInput, err)
	}
	for _, in := range inputs {
		if in == "" {
			continue
		}
		p, err := canonical(in)
		if err != nil {
			return fmt.Errorf("%w: %w", failure.ErrInput, err)
		}
		if p == out {
			return fmt.Errorf("%w: %w: %s", failure.ErrInput, ErrOutputIsInput, output)
		}
	}
	return nil
}

// SanitizeFilename makes a file name component from an arbitrary string.
// Anything but ASCII letters, digits, dot, underscore or dash becomes a
// single underscore, and the result is capped at 128 bytes.
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
			lastUnderscore = r == '_'
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
