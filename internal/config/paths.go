package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const defaultBaseDir = ".agentdesk"

// Paths holds resolved filesystem paths for agentdesk data.
type Paths struct {
	Base   string // ~/.agentdesk
	Config string // ~/.agentdesk/config.yaml
	Env    string // ~/.agentdesk/.env
	Data   string // ~/.agentdesk/data
	Logs   string // ~/.agentdesk/logs
	Hooks  string // ~/.agentdesk/hooks
}

// ResolvePaths computes all standard paths from the home directory.
// If AGENTDESK_HOME is set, it overrides the default base directory.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("AGENTDESK_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}

	return Paths{
		Base:   base,
		Config: filepath.Join(base, "config.yaml"),
		Env:    filepath.Join(base, ".env"),
		Data:   filepath.Join(base, "data"),
		Logs:   filepath.Join(base, "logs"),
		Hooks:  filepath.Join(base, "hooks"),
	}, nil
}

// Database returns the SQLite database location.
func (p Paths) Database() string {
	return filepath.Join(p.Data, "agentdesk.db")
}

// EnsureDirs creates all standard directories if they don't exist.
func (p Paths) EnsureDirs() error {
	dirs := []string{p.Base, p.Data, p.Logs, p.Hooks}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}

// keyPattern matches one segment of a dotted config path.
var keyPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ParseConfigPath splits a dotted path such as "gateway.auth.token" into
// its keys.
func ParseConfigPath(raw string) ([]string, error) {
	if raw == "" {
		return nil, &ConfigError{Message: "empty config path"}
	}
	parts := strings.Split(raw, ".")
	for _, p := range parts {
		if !keyPattern.MatchString(p) {
			return nil, &ConfigError{Message: fmt.Sprintf("invalid key %q in config path %q", p, raw)}
		}
	}
	return parts, nil
}

// parentOf walks to the map holding the last key of path. With create,
// missing or non-map intermediate values are replaced by empty maps.
func parentOf(root map[string]any, path []string, create bool) (map[string]any, bool) {
	m := root
	for _, key := range path[:len(path)-1] {
		next, ok := m[key].(map[string]any)
		if !ok {
			if !create {
				return nil, false
			}
			next = map[string]any{}
			m[key] = next
		}
		m = next
	}
	return m, true
}

// GetValueAtPath returns the value at path.
func GetValueAtPath(root map[string]any, path []string) (any, bool) {
	m, ok := parentOf(root, path, false)
	if !ok {
		return nil, false
	}
	v, ok := m[path[len(path)-1]]
	return v, ok
}

// SetValueAtPath stores value at path, creating maps along the way.
func SetValueAtPath(root map[string]any, path []string, value any) {
	m, _ := parentOf(root, path, true)
	m[path[len(path)-1]] = value
}

// UnsetValueAtPath deletes the value at path and reports whether it was
// there.
func UnsetValueAtPath(root map[string]any, path []string) bool {
	m, ok := parentOf(root, path, false)
	if !ok {
		return false
	}
	last := path[len(path)-1]
	if _, ok := m[last]; !ok {
		return false
	}
	delete(m, last)
	return true
}
