package digest

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/maestro/maestro/internal/common/logger"
)

const (
	// pathCacheTTL bounds how long a resolved (session -> log file) mapping
	// is trusted without re-scanning.
	pathCacheTTL = 60 * time.Second

	headerProbeSize = 256 * 1024
	headerRetrySize = 1024 * 1024
	sessionTagOpen  = "<session_id>"
	sessionTagClose = "</session_id>"
)

// location is a resolved log file with its detected dialect.
type location struct {
	Path   string
	Source string
}

// Locator resolves a session id to its JSONL log file, scanning Claude
// project directories first and Codex session directories second.
type Locator struct {
	claudeDir string
	codexDir  string
	cache     *gocache.Cache
	logger    *logger.Logger
}

// NewLocator creates a locator over the two external log roots.
func NewLocator(claudeProjectsDir, codexSessionsDir string, log *logger.Logger) *Locator {
	return &Locator{
		claudeDir: claudeProjectsDir,
		codexDir:  codexSessionsDir,
		cache:     gocache.New(pathCacheTTL, 2*pathCacheTTL),
		logger:    log.WithFields(zap.String("component", "digest-locator")),
	}
}

// Resolve returns the log file for a session, or ok=false when none is
// found. workingDir narrows the Claude scan to the matching project
// directory before falling back to all of them.
func (l *Locator) Resolve(sessionID, workingDir string) (location, bool) {
	if cached, found := l.cache.Get(sessionID); found {
		loc := cached.(location)
		if _, err := os.Stat(loc.Path); err == nil {
			return loc, true
		}
		l.cache.Delete(sessionID)
	}

	if loc, ok := l.scanClaude(sessionID, workingDir); ok {
		l.cache.Set(sessionID, loc, gocache.DefaultExpiration)
		return loc, true
	}
	if loc, ok := l.scanCodex(sessionID); ok {
		l.cache.Set(sessionID, loc, gocache.DefaultExpiration)
		return loc, true
	}
	return location{}, false
}

func (l *Locator) scanClaude(sessionID, workingDir string) (location, bool) {
	var dirs []string
	if workingDir != "" {
		// Claude names project directories by the working dir with slashes
		// replaced by dashes.
		dirs = append(dirs, filepath.Join(l.claudeDir, strings.ReplaceAll(workingDir, "/", "-")))
	}
	entries, err := os.ReadDir(l.claudeDir)
	if err == nil {
		for _, e := range entries {
			if e.IsDir() {
				dirs = append(dirs, filepath.Join(l.claudeDir, e.Name()))
			}
		}
	}

	seen := make(map[string]struct{}, len(dirs))
	for _, dir := range dirs {
		if _, dup := seen[dir]; dup {
			continue
		}
		seen[dir] = struct{}{}
		files, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
		if err != nil {
			continue
		}
		for _, file := range files {
			if l.fileMatchesSession(file, sessionID) {
				return location{Path: file, Source: SourceClaude}, true
			}
		}
	}
	return location{}, false
}

func (l *Locator) scanCodex(sessionID string) (location, bool) {
	var match string
	_ = filepath.WalkDir(l.codexDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || match != "" {
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(path, ".jsonl") {
			return nil
		}
		if l.fileMatchesSession(path, sessionID) {
			match = path
		}
		return nil
	})
	if match == "" {
		return location{}, false
	}
	return location{Path: match, Source: SourceCodex}, true
}

// fileMatchesSession probes the file header for the session id marker,
// widening the probe once when the header looks like a long session-meta
// payload.
func (l *Locator) fileMatchesSession(path, sessionID string) bool {
	marker := []byte(sessionTagOpen + sessionID + sessionTagClose)

	head, err := readHead(path, headerProbeSize)
	if err != nil {
		return false
	}
	if bytes.Contains(head, marker) {
		return true
	}
	// A header filling the whole probe with session metadata may push the
	// marker past the first window.
	if len(head) == headerProbeSize && bytes.Contains(head, []byte("session_meta")) {
		head, err = readHead(path, headerRetrySize)
		if err != nil {
			return false
		}
		return bytes.Contains(head, marker)
	}
	return false
}

func readHead(path string, limit int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	buf := make([]byte, limit)
	n, err := io.ReadFull(f, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		// File shorter than the probe; the read is still complete.
		return buf[:n], nil
	}
	if err != nil {
		return nil, err
	}
	return buf, nil
}
