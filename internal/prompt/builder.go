// Package prompt implements the Prompt Builder (§4.E): the stateless
// assembly of each turn's system prompt from a constant preamble, the
// workspace's markdown files, runtime metadata, and the slash-command
// catalog. Every call reads the workspace from disk, so operator edits to
// any of those files take effect on the very next turn.
package prompt

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/opencrabs/opencrabs/internal/commands"
	"github.com/opencrabs/opencrabs/internal/datetime"
	"github.com/opencrabs/opencrabs/internal/workspace"
)

// preamble is the hidden constant section that precedes every workspace
// file (§6): identity, tool-use discipline, and the plan-tool protocol.
// Unlike the workspace files it can never be edited at runtime.
const preamble = `You are OpenCrabs, a terminal AI agent operating on behalf of a single human operator.
You have tools for reading and writing files, running shell commands, searching the web, and sending messages. Use them deliberately: prefer the narrowest tool that accomplishes the step, explain destructive actions before taking them, and never assume an approval you have not received.
When a task has more than a couple of steps, draft a plan with the plan tool before executing it, and keep the plan's task list current as work proceeds. Planning mode disables every tool that could write files, run shell commands, or modify the system; treat a refusal from one of those tools in planning mode as expected, not as an error to route around.
Answer the operator directly. Do not narrate intentions you are not about to act on.`

// workspaceFile names one file the builder looks for, in the fixed order
// spec.md §6 specifies, along with the semantic label placed in its
// section header.
type workspaceFile struct {
	name    string
	label   string
	content string
}

// RuntimeInfo is the per-turn metadata the builder stamps into its
// runtime-info block (§4.E item 3).
type RuntimeInfo struct {
	Model     string
	Provider  string
	WorkDir   string
	Timestamp time.Time // if zero, time.Now().UTC() is used
}

// Builder assembles the system prompt. It holds no per-turn state of its
// own; every workspace markdown file is read fresh from disk on each Build
// call. The one exception is commands.json: when CommandsWatcher is set,
// the user-command catalog is served from its fsnotify-refreshed cache
// instead of a synchronous read, so Build never blocks a turn on disk I/O
// waiting for an edit that may not have happened.
type Builder struct {
	WorkspaceRoot    string
	WorkspaceCfg     workspace.LoaderConfig
	CommandsJSONPath string
	CommandRegistry  *commands.Registry
	CommandsWatcher  *commands.Watcher

	// Timezone is the operator's configured IANA timezone for the runtime
	// block's local-time line. Empty falls back to the host timezone.
	Timezone string
}

// Build assembles the full system prompt for one turn (§4.E). Missing or
// whitespace-only workspace files are omitted silently; a missing
// commands.json yields an empty user-command section, never an error.
func (b *Builder) Build(info RuntimeInfo) (string, error) {
	var sections []string
	sections = append(sections, preamble)

	ws, err := workspace.LoadWorkspace(b.WorkspaceCfg)
	if err != nil {
		return "", fmt.Errorf("prompt: loading workspace: %w", err)
	}

	files := []workspaceFile{
		{name: "SOUL.md", label: "Soul — core disposition", content: ws.SoulContent},
		{name: "IDENTITY.md", label: "Identity", content: ws.IdentityContent},
		{name: "USER.md", label: "Operator profile", content: ws.UserContent},
		{name: "AGENTS.md", label: "Working agreements", content: ws.AgentsContent},
		{name: "TOOLS.md", label: "Tool notes", content: ws.ToolsContent},
		{name: "MEMORY.md", label: "Memory", content: ws.MemoryContent},
	}
	for _, f := range files {
		if strings.TrimSpace(f.content) == "" {
			continue
		}
		sections = append(sections, fmt.Sprintf("## %s (%s)\n%s", f.name, f.label, strings.TrimSpace(f.content)))
	}

	sections = append(sections, b.runtimeBlock(info))

	if catalog := b.commandCatalog(); catalog != "" {
		sections = append(sections, catalog)
	}

	return strings.Join(sections, "\n\n"), nil
}

func (b *Builder) runtimeBlock(info RuntimeInfo) string {
	ts := info.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	block := fmt.Sprintf(
		"## Runtime\nModel: %s\nProvider: %s\nWorking directory: %s\nOS: %s\nUTC time: %s",
		orDash(info.Model), orDash(info.Provider), orDash(info.WorkDir), runtime.GOOS, ts.UTC().Format(time.RFC3339),
	)
	tz := datetime.ResolveUserTimezone(b.Timezone)
	if local := datetime.FormatUserTime(ts, tz, datetime.ResolveUserTimeFormat(datetime.TimeFormatAuto)); local != "" {
		block += fmt.Sprintf("\nLocal time: %s (%s)", local, tz)
	}
	return block
}

// commandCatalog renders every built-in and user-defined slash command's
// name and description on its own line (§4.E item 4).
func (b *Builder) commandCatalog() string {
	type entry struct{ name, description string }
	var entries []entry

	if b.CommandRegistry != nil {
		for _, c := range b.CommandRegistry.ListVisible() {
			entries = append(entries, entry{name: c.Name, description: c.Description})
		}
	}

	switch {
	case b.CommandsWatcher != nil:
		for _, c := range b.CommandsWatcher.Commands() {
			entries = append(entries, entry{name: c.Name, description: c.Description})
		}
	case b.CommandsJSONPath != "":
		userCmds, err := commands.LoadUserCommands(b.CommandsJSONPath)
		if err == nil {
			for _, c := range userCmds {
				entries = append(entries, entry{name: c.Name, description: c.Description})
			}
		}
	}

	if len(entries) == 0 {
		return ""
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })

	var lines []string
	lines = append(lines, "## Slash commands")
	for _, e := range entries {
		if e.description != "" {
			lines = append(lines, fmt.Sprintf("/%s — %s", e.name, e.description))
		} else {
			lines = append(lines, fmt.Sprintf("/%s", e.name))
		}
	}
	return strings.Join(lines, "\n")
}

func orDash(s string) string {
	if s == "" {
		return "(unset)"
	}
	return s
}
