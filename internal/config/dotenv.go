package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotenv loads environment variables from a local .env file if present.
//
// It does NOT override already-exported environment variables, so credentials
// set by a service manager always win over a stale file.
func LoadDotenv(explicit ...string) {
	// An explicit path (flag or ENV_FILE, comma-separated) replaces the search.
	paths := explicit
	if len(paths) == 0 {
		if v := strings.TrimSpace(os.Getenv("ENV_FILE")); v != "" {
			paths = strings.Split(v, ",")
		}
	}
	if len(paths) > 0 {
		for i := range paths {
			paths[i] = strings.TrimSpace(paths[i])
		}
		_ = godotenv.Load(paths...)
		return
	}

	candidates := []string{".env"}
	if exe, err := os.Executable(); err == nil {
		// The bridge is often started by a desktop app from another working dir.
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), ".env"))
	}

	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			return
		}
	}
}
