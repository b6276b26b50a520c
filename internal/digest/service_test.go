package digest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro/maestro/internal/common/logger"
	"github.com/maestro/maestro/internal/domain"
	"github.com/maestro/maestro/internal/store"
)

func claudeHeader(sessionID string) string {
	return fmt.Sprintf(`{"type":"user","isMeta":true,"message":{"content":"<session_id>%s</session_id>"}}`, sessionID)
}

func claudeText(ts time.Time, text string) string {
	return fmt.Sprintf(`{"type":"assistant","timestamp":"%s","message":{"content":[{"type":"text","text":"%s"}]}}`,
		ts.Format(time.RFC3339), text)
}

func claudeToolUse(ts time.Time) string {
	return fmt.Sprintf(`{"type":"assistant","timestamp":"%s","message":{"content":[{"type":"tool_use","id":"tu1","name":"Bash"}]}}`,
		ts.Format(time.RFC3339))
}

func claudePrompt(ts time.Time, text string) string {
	return fmt.Sprintf(`{"type":"user","timestamp":"%s","message":{"content":"%s"}}`,
		ts.Format(time.RFC3339), text)
}

type fixture struct {
	svc        *Service
	store      *store.MemoryStore
	claudeDir  string
	workingDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	log := logger.Default()
	st := store.NewMemoryStore()

	claudeDir := t.TempDir()
	codexDir := t.TempDir()
	workingDir := "/repos/demo"

	require.NoError(t, st.Projects().Create(ctx, &domain.Project{
		ID: "p1", Name: "demo", WorkingDir: workingDir,
	}))
	require.NoError(t, st.Sessions().Create(ctx, &domain.Session{
		ID: "s1", ProjectID: "p1", Status: domain.SessionStatusWorking,
	}))

	svc := NewService(st, NewLocator(claudeDir, codexDir, log), log)
	return &fixture{svc: svc, store: st, claudeDir: claudeDir, workingDir: workingDir}
}

func (f *fixture) writeClaudeLog(t *testing.T, sessionID string, lines ...string) {
	t.Helper()
	dir := filepath.Join(f.claudeDir, strings.ReplaceAll(f.workingDir, "/", "-"))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	content := claudeHeader(sessionID) + "\n" + strings.Join(lines, "\n") + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, sessionID+".jsonl"), []byte(content), 0o644))
}

func TestGetDigestReadsClaudeLog(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	now := time.Now().UTC().Truncate(time.Second)
	f.writeClaudeLog(t, "s1",
		claudePrompt(now.Add(-2*time.Minute), "Please fix the login bug"),
		claudeText(now.Add(-1*time.Minute), "Looking at the auth handler now"),
		claudeText(now, "Found the issue in token refresh"),
	)

	d, err := f.svc.GetDigest(ctx, "s1", Options{})
	require.NoError(t, err)
	assert.Equal(t, "s1", d.SessionID)
	assert.Equal(t, SourceClaude, d.Source)
	assert.Equal(t, StateActive, d.State)
	assert.Nil(t, d.Stuck)
	require.Len(t, d.Entries, 3)
	assert.Equal(t, "[PROMPT] Please fix the login bug", d.Entries[0].Text)
	assert.Equal(t, "user", d.Entries[0].Role)
	assert.Equal(t, "Found the issue in token refresh", d.Entries[2].Text)
}

func TestGetDigestMissingLogIsEmpty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	d, err := f.svc.GetDigest(ctx, "s1", Options{})
	require.NoError(t, err)
	assert.Empty(t, d.Entries)
	assert.Empty(t, d.Source)
	assert.Nil(t, d.Stuck)
}

func TestGetDigestUnknownSessionFails(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetDigest(context.Background(), "nope", Options{})
	assert.Error(t, err)
}

func TestLastLimitsEntries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	now := time.Now().UTC()
	var lines []string
	for i := 0; i < 5; i++ {
		lines = append(lines, claudeText(now.Add(time.Duration(i)*time.Minute), fmt.Sprintf("step %d done, moving on", i)))
	}
	f.writeClaudeLog(t, "s1", lines...)

	d, err := f.svc.GetDigest(ctx, "s1", Options{Last: 2})
	require.NoError(t, err)
	require.Len(t, d.Entries, 2)
	assert.Contains(t, d.Entries[0].Text, "step 3")
	assert.Contains(t, d.Entries[1].Text, "step 4")
}

func TestStuckAfterRepeatedToolCalls(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	now := time.Now().UTC()
	var lines []string
	for i := 0; i < 7; i++ {
		lines = append(lines, claudeToolUse(now.Add(time.Duration(i)*time.Second)))
	}
	f.writeClaudeLog(t, "s1", lines...)

	d, err := f.svc.GetDigest(ctx, "s1", Options{})
	require.NoError(t, err)
	require.NotNil(t, d.Stuck)
	assert.Equal(t, 7, d.Stuck.ToolCallsSinceLastText)
	assert.Contains(t, d.Stuck.Warning, "7 tool calls")

	// Fresh text output clears the flag.
	lines = append(lines, claudeText(now.Add(10*time.Second), "Done scanning, writing the fix"))
	f.writeClaudeLog(t, "s1", lines...)
	f.svc.locator.cache.Flush()

	d, err = f.svc.GetDigest(ctx, "s1", Options{})
	require.NoError(t, err)
	assert.Nil(t, d.Stuck)
}

func TestStuckRequiresStaleText(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	now := time.Now().UTC()

	lines := []string{claudeText(now.Add(-5*time.Second), "Starting the scan")}
	for i := 0; i < 6; i++ {
		lines = append(lines, claudeToolUse(now))
	}
	f.writeClaudeLog(t, "s1", lines...)

	// Text 5 seconds old: the run of tool calls is normal activity.
	d, err := f.svc.GetDigest(ctx, "s1", Options{})
	require.NoError(t, err)
	assert.Nil(t, d.Stuck)

	// The same shape with minute-old text is flagged.
	f.svc.now = func() time.Time { return now.Add(2 * time.Minute) }
	f.svc.locator.cache.Flush()
	d, err = f.svc.GetDigest(ctx, "s1", Options{})
	require.NoError(t, err)
	require.NotNil(t, d.Stuck)
	assert.Equal(t, 6, d.Stuck.ToolCallsSinceLastText)
}

func TestNoiseTagsAreDropped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	now := time.Now().UTC()
	f.writeClaudeLog(t, "s1",
		claudePrompt(now, "<system-reminder>internal note</system-reminder>"),
		claudeText(now.Add(time.Second), "Real progress update"),
	)

	d, err := f.svc.GetDigest(ctx, "s1", Options{})
	require.NoError(t, err)
	require.Len(t, d.Entries, 1)
	assert.Equal(t, "Real progress update", d.Entries[0].Text)
}

func TestWorkerDigestsCoverNonTerminalChildren(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	now := time.Now().UTC()

	for i, status := range []domain.SessionStatus{
		domain.SessionStatusWorking,
		domain.SessionStatusNeedsInput,
		domain.SessionStatusCompleted,
	} {
		require.NoError(t, f.store.Sessions().Create(ctx, &domain.Session{
			ID:              fmt.Sprintf("w%d", i+1),
			ProjectID:       "p1",
			ParentSessionID: "s1",
			Status:          status,
		}))
	}
	f.writeClaudeLog(t, "w1", claudeText(now, "Worker one reporting in"))

	digests, err := f.svc.GetWorkerDigests(ctx, "s1", Options{})
	require.NoError(t, err)
	require.Len(t, digests, 2, "terminal workers are excluded, needs_input is kept")
	assert.Equal(t, "w1", digests[0].SessionID)
	require.Len(t, digests[0].Entries, 1)
	assert.Equal(t, "Worker one reporting in", digests[0].Entries[0].Text)
	assert.Equal(t, "w2", digests[1].SessionID)
	assert.Equal(t, StateNeedsInput, digests[1].State)
}

func TestGetDigestsIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	now := time.Now().UTC()
	f.writeClaudeLog(t, "s1", claudeText(now, "All good here"))

	digests, err := f.svc.GetDigests(ctx, []string{"s1", "ghost"}, Options{})
	require.NoError(t, err)
	require.Len(t, digests, 2)
	assert.Len(t, digests[0].Entries, 1)
	assert.Equal(t, "ghost", digests[1].SessionID)
	assert.Empty(t, digests[1].Entries)
}

func TestTruncateToFirstSentence(t *testing.T) {
	got := truncate("First sentence here. Second sentence follows with detail.", 150)
	assert.Equal(t, "First sentence here.…", got)

	long := strings.Repeat("word ", 50)
	got = truncate(long, 20)
	assert.True(t, strings.HasSuffix(got, "…"))
	assert.LessOrEqual(t, len([]rune(got)), 21)

	assert.Equal(t, "short text", truncate("short text", 150))
}

func TestMaxLengthZeroDisablesTruncation(t *testing.T) {
	long := strings.Repeat("a", 300)
	items := []item{{role: "assistant", text: long, isText: true}}

	// Absent option applies the 150 default.
	entries := buildEntries(items, SourceClaude, Options{})
	require.Len(t, entries, 1)
	assert.Len(t, []rune(entries[0].Text), defaultMaxLength+1)
	assert.True(t, strings.HasSuffix(entries[0].Text, "…"))

	// An explicit zero returns the full text.
	zero := 0
	entries = buildEntries(items, SourceClaude, Options{MaxLength: &zero})
	require.Len(t, entries, 1)
	assert.Equal(t, long, entries[0].Text)

	ten := 10
	entries = buildEntries(items, SourceClaude, Options{MaxLength: &ten})
	require.Len(t, entries, 1)
	assert.Len(t, []rune(entries[0].Text), 11)
}

func TestGetDigestHonorsMaxLengthZero(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	now := time.Now().UTC()
	long := strings.Repeat("b", 200)
	f.writeClaudeLog(t, "s1", claudeText(now, long))

	zero := 0
	d, err := f.svc.GetDigest(ctx, "s1", Options{MaxLength: &zero})
	require.NoError(t, err)
	require.Len(t, d.Entries, 1)
	assert.Equal(t, long, d.Entries[0].Text)
}

func TestReadHeadShortFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.jsonl")
	content := []byte(claudeHeader("s1") + "\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	head, err := readHead(path, headerProbeSize)
	require.NoError(t, err)
	assert.Equal(t, content, head)
}

func TestDedupeDropsRapidRepeats(t *testing.T) {
	now := time.Now()
	entries := []Entry{
		{Source: SourceClaude, Role: "assistant", Text: "Running tests", Timestamp: now},
		{Source: SourceClaude, Role: "assistant", Text: "Running tests", Timestamp: now.Add(500 * time.Millisecond)},
		{Source: SourceClaude, Role: "assistant", Text: "Running tests", Timestamp: now.Add(5 * time.Second)},
	}
	out := dedupe(entries)
	require.Len(t, out, 2)
}

func TestParseCodexLines(t *testing.T) {
	lines := []string{
		`{"type":"event_msg","timestamp":"2026-01-02T10:00:00Z","payload":{"type":"token_count","message":"ignored"}}`,
		`{"type":"event_msg","timestamp":"2026-01-02T10:00:01Z","payload":{"type":"agent_message","message":"Checking the config loader"}}`,
		`{"type":"response_item","timestamp":"2026-01-02T10:00:02Z","payload":{"type":"function_call","name":"shell"}}`,
		`{"type":"response_item","timestamp":"2026-01-02T10:00:03Z","payload":{"type":"message","role":"assistant","content":[{"type":"output_text","text":"Config loader is fine"}]}}`,
	}
	items := parseLines(lines, SourceCodex)
	require.Len(t, items, 3)
	assert.True(t, items[0].isText)
	assert.Equal(t, "Checking the config loader", items[0].text)
	assert.True(t, items[1].isToolUse)
	assert.Equal(t, "Config loader is fine", items[2].text)
}
