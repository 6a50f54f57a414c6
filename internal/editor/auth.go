package editor

import (
	"os"
	"path/filepath"
)

// credentialPaths are probed relative to the user's home directory.
var credentialPaths = []string{
	filepath.Join(".claude", ".credentials.json"),
	filepath.Join(".claude", "settings.json"),
}

// HasCredentials reports whether the agent CLI has a usable credential
// source: an API key in config or a credentials file on disk. It only
// probes the filesystem and never launches the agent.
func (e *Editor) HasCredentials() bool {
	if e.apiKey != "" {
		return true
	}
	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		return true
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return false
	}
	for _, rel := range credentialPaths {
		if info, err := os.Stat(filepath.Join(home, rel)); err == nil && !info.IsDir() {
			return true
		}
	}
	return false
}
