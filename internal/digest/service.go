package digest

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/maestro/maestro/internal/common/errors"
	"github.com/maestro/maestro/internal/common/logger"
	"github.com/maestro/maestro/internal/domain"
	"github.com/maestro/maestro/internal/store"
)

const (
	defaultMaxLength = 150

	// stuckToolCallThreshold is the number of consecutive tool calls after
	// which a session is flagged when no recent text accompanies them.
	stuckToolCallThreshold = 5
	stuckSilence           = 30 * time.Second

	// batchConcurrency bounds parallel log reads in the multi-session path.
	batchConcurrency = 8
)

// Service builds digests by locating and tailing session log files. It
// holds no state of its own; every call re-reads the log tail.
type Service struct {
	store   store.Store
	locator *Locator
	logger  *logger.Logger
	now     func() time.Time
}

// NewService creates the digest service.
func NewService(st store.Store, locator *Locator, log *logger.Logger) *Service {
	return &Service{
		store:   st,
		locator: locator,
		logger:  log.WithFields(zap.String("component", "digest-service")),
		now:     time.Now,
	}
}

// GetDigest returns the digest for one session. Missing or unreadable log
// files yield an empty digest rather than an error; only an unknown
// session id fails.
func (s *Service) GetDigest(ctx context.Context, sessionID string, opts Options) (*Digest, error) {
	sess, err := s.store.Sessions().Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.digestFor(ctx, sess, opts), nil
}

// GetDigests returns digests for an explicit set of session ids. A
// failure on one session produces an empty digest for it without
// affecting the others.
func (s *Service) GetDigests(ctx context.Context, sessionIDs []string, opts Options) ([]*Digest, error) {
	sessions := make([]*domain.Session, len(sessionIDs))
	for i, id := range sessionIDs {
		sess, err := s.store.Sessions().Get(ctx, id)
		if err != nil {
			if apperrors.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		sessions[i] = sess
	}
	return s.batch(ctx, sessionIDs, sessions, opts), nil
}

// GetWorkerDigests returns digests for the non-terminal children of a
// parent session, ordered by creation time. A needs_input worker still
// gets a digest even though it is out of the mail fan-out set.
func (s *Service) GetWorkerDigests(ctx context.Context, parentSessionID string, opts Options) ([]*Digest, error) {
	parent, err := s.store.Sessions().Get(ctx, parentSessionID)
	if err != nil {
		return nil, err
	}
	children, err := s.store.Sessions().List(ctx, store.SessionFilter{
		ProjectID:       parent.ProjectID,
		ParentSessionID: parentSessionID,
	})
	if err != nil {
		return nil, err
	}
	var (
		ids     []string
		workers []*domain.Session
	)
	for _, w := range children {
		if w.Status.IsTerminal() {
			continue
		}
		ids = append(ids, w.ID)
		workers = append(workers, w)
	}
	return s.batch(ctx, ids, workers, opts), nil
}

// batch digests sessions in parallel. sessions[i] may be nil for unknown
// ids; those and per-session failures become empty digests.
func (s *Service) batch(ctx context.Context, ids []string, sessions []*domain.Session, opts Options) []*Digest {
	digests := make([]*Digest, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for i := range ids {
		i := i
		g.Go(func() error {
			if sessions[i] == nil {
				digests[i] = &Digest{SessionID: ids[i], State: StateIdle, Entries: []Entry{}}
				return nil
			}
			digests[i] = s.digestFor(gctx, sessions[i], opts)
			return nil
		})
	}
	_ = g.Wait()
	return digests
}

func (s *Service) digestFor(ctx context.Context, sess *domain.Session, opts Options) *Digest {
	d := &Digest{
		SessionID: sess.ID,
		State:     stateFor(sess),
		Entries:   []Entry{},
	}

	workingDir := ""
	if project, err := s.store.Projects().Get(ctx, sess.ProjectID); err == nil {
		workingDir = project.WorkingDir
	}

	loc, ok := s.locator.Resolve(sess.ID, workingDir)
	if !ok {
		return d
	}
	d.Source = loc.Source

	lines, err := tailLines(loc.Path)
	if err != nil {
		s.logger.WithSessionID(sess.ID).Debug("log tail unreadable",
			zap.String("path", loc.Path), zap.Error(err))
		return d
	}

	items := parseLines(lines, loc.Source)
	d.Stuck = s.detectStuck(items)
	d.Entries = buildEntries(items, loc.Source, opts)
	return d
}

// buildEntries filters, truncates and dedupes parsed items into the final
// entry list, keeping the most recent opts.Last entries.
func buildEntries(items []item, source string, opts Options) []Entry {
	maxLength := defaultMaxLength
	if opts.MaxLength != nil {
		maxLength = *opts.MaxLength
	}

	entries := make([]Entry, 0, len(items))
	for _, it := range items {
		if !it.isText {
			continue
		}
		text := stripNoiseTags(it.text)
		if text == "" {
			continue
		}
		text = truncate(text, maxLength)
		if it.isPrompt && !strings.HasPrefix(text, promptPrefix) {
			text = promptPrefix + text
		}
		entries = append(entries, Entry{
			Source:    source,
			Role:      it.role,
			Text:      text,
			Timestamp: it.timestamp,
		})
	}

	entries = dedupe(entries)
	if opts.Last > 0 && len(entries) > opts.Last {
		entries = entries[len(entries)-opts.Last:]
	}
	return entries
}

// detectStuck flags a run of tool calls after the last text item, either
// with no text at all or with the last text older than the silence window.
func (s *Service) detectStuck(items []item) *Stuck {
	toolCalls := 0
	var lastText time.Time
	hasText := false
	for _, it := range items {
		switch {
		case it.isText:
			toolCalls = 0
			hasText = true
			if it.timestamp.After(lastText) {
				lastText = it.timestamp
			}
		case it.isToolUse:
			toolCalls++
		}
	}
	if toolCalls <= stuckToolCallThreshold {
		return nil
	}
	if hasText && !lastText.IsZero() && s.now().Sub(lastText) <= stuckSilence {
		return nil
	}
	return &Stuck{
		ToolCallsSinceLastText: toolCalls,
		Warning:                warnStuck(toolCalls),
	}
}

func warnStuck(toolCalls int) string {
	return "session may be stuck: " + strconv.Itoa(toolCalls) + " tool calls without text output"
}

func stateFor(sess *domain.Session) string {
	if sess.NeedsInput.Active || sess.Status == domain.SessionStatusNeedsInput {
		return StateNeedsInput
	}
	switch sess.Status {
	case domain.SessionStatusWorking, domain.SessionStatusSpawning:
		return StateActive
	}
	return StateIdle
}
