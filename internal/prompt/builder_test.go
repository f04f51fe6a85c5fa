package prompt

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencrabs/opencrabs/internal/commands"
	"github.com/opencrabs/opencrabs/internal/workspace"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestBuildOmitsMissingAndBlankFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "SOUL.md", "Be curious.")
	writeFile(t, dir, "AGENTS.md", "   \n  ")

	b := &Builder{WorkspaceCfg: workspace.LoaderConfig{Root: dir}}
	out, err := b.Build(RuntimeInfo{Model: "claude", Provider: "anthropic", WorkDir: dir})
	require.NoError(t, err)

	assert.Contains(t, out, "Be curious.")
	assert.NotContains(t, out, "AGENTS.md")
	assert.NotContains(t, out, "IDENTITY.md")
}

func TestBuildIncludesRuntimeInfo(t *testing.T) {
	dir := t.TempDir()
	b := &Builder{WorkspaceCfg: workspace.LoaderConfig{Root: dir}}
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	out, err := b.Build(RuntimeInfo{Model: "gpt-5", Provider: "openai", WorkDir: "/work", Timestamp: fixed})
	require.NoError(t, err)

	assert.Contains(t, out, "Model: gpt-5")
	assert.Contains(t, out, "Provider: openai")
	assert.Contains(t, out, "Working directory: /work")
	assert.Contains(t, out, "2026-01-02T03:04:05Z")
}

func TestRuntimeBlockLocalTimeHonoursConfiguredTimezone(t *testing.T) {
	dir := t.TempDir()
	b := &Builder{WorkspaceCfg: workspace.LoaderConfig{Root: dir}, Timezone: "UTC"}
	fixed := time.Date(2026, 3, 14, 9, 26, 0, 0, time.UTC)
	out, err := b.Build(RuntimeInfo{Model: "m", Provider: "p", WorkDir: "/work", Timestamp: fixed})
	require.NoError(t, err)

	assert.Contains(t, out, "Local time: ")
	assert.Contains(t, out, "(UTC)")
	assert.Contains(t, out, "March 14th, 2026")
}

func TestBuildIsByteIdenticalExceptTimestamp(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "SOUL.md", "Stable disposition.")
	b := &Builder{WorkspaceCfg: workspace.LoaderConfig{Root: dir}}

	first, err := b.Build(RuntimeInfo{Model: "m", Provider: "p", WorkDir: dir, Timestamp: time.Unix(0, 0).UTC()})
	require.NoError(t, err)
	second, err := b.Build(RuntimeInfo{Model: "m", Provider: "p", WorkDir: dir, Timestamp: time.Unix(100, 0).UTC()})
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	firstNoTS := stripTimestampLine(first)
	secondNoTS := stripTimestampLine(second)
	assert.Equal(t, firstNoTS, secondNoTS)
}

func stripTimestampLine(s string) string {
	lines := []rune{}
	for _, line := range splitLines(s) {
		if len(line) >= 9 && line[:9] == "UTC time:" {
			continue
		}
		if len(line) >= 11 && line[:11] == "Local time:" {
			continue
		}
		lines = append(lines, []rune(line+"\n")...)
	}
	return string(lines)
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i, r := range s {
		if r == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func TestCommandCatalogListsBuiltinsAndUserDefined(t *testing.T) {
	dir := t.TempDir()
	commandsPath := filepath.Join(dir, "commands.json")
	writeFile(t, dir, "commands.json", `[{"name":"standup","description":"post a standup note","action":"prompt","prompt":"write my standup"}]`)

	reg := commands.NewRegistry(nil)
	commands.RegisterBuiltins(reg)

	b := &Builder{WorkspaceCfg: workspace.LoaderConfig{Root: dir}, CommandsJSONPath: commandsPath, CommandRegistry: reg}
	out, err := b.Build(RuntimeInfo{Model: "m", Provider: "p", WorkDir: dir})
	require.NoError(t, err)

	assert.Contains(t, out, "/help")
	assert.Contains(t, out, "/standup — post a standup note")
}
