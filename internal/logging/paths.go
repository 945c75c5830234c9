package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir is ~/.coderag/logs, or a temp dir when home is unknown.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".coderag", "logs")
	}
	return filepath.Join(home, ".coderag", "logs")
}

// DefaultLogPath is the log file shared by every subcommand.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "coderag.log")
}
