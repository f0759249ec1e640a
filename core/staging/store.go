// Package staging manages the local directory holding generated program
// and module files before they reach the controller.
package staging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/robonet-io/armbridge/core/controller"
)

// programSkeleton is the boilerplate program file created once per task at
// startup. The controller fills it as modules are loaded.
const programSkeleton = "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n" +
	"<Program>\n" +
	"</Program>\n"

// Store writes staged files into a fixed local directory. Every write
// overwrites: staged files carry only the latest content.
type Store struct {
	dir     string
	program string
}

// New constructs a store rooted at dir with the given program name.
func New(dir, programName string) *Store {
	return &Store{dir: dir, program: programName}
}

// Dir returns the staging directory path.
func (s *Store) Dir() string {
	return s.dir
}

// EnsureDir creates the staging directory if absent. Idempotent.
func (s *Store) EnsureDir() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create staging dir %s: %w", s.dir, err)
	}
	return nil
}

// ProgramFileName returns the logical filename of a task's program file.
func (s *Store) ProgramFileName(task controller.Task) string {
	return fmt.Sprintf("%s_%s.pgf", s.program, task)
}

// ModuleFileName returns the logical filename of a task's module file.
func (s *Store) ModuleFileName(task controller.Task) string {
	return string(task) + ".mod"
}

// WriteProgram writes the program skeleton for a task and returns the
// local path.
func (s *Store) WriteProgram(task controller.Task) (string, error) {
	return s.write(s.ProgramFileName(task), []byte(programSkeleton))
}

// WriteModule writes the module source for a task exactly as received and
// returns the local path. The payload is opaque to the bridge: no
// validation, no transformation.
func (s *Store) WriteModule(task controller.Task, source string) (string, error) {
	return s.write(s.ModuleFileName(task), []byte(source))
}

func (s *Store) write(name string, content []byte) (string, error) {
	if err := s.EnsureDir(); err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("write staged file %s: %w", path, err)
	}
	return path, nil
}
