package commands

import (
	"encoding/json"
	"fmt"
	"os"
)

// UserAction is what a user-defined slash command does when invoked (§6).
type UserAction string

const (
	// ActionPrompt appends Prompt as a fresh user-role message.
	ActionPrompt UserAction = "prompt"
	// ActionSystem injects Prompt as an ephemeral system-role message
	// rather than a user-role one (supplemental behavior carried over from
	// original_source/'s commands.json loader).
	ActionSystem UserAction = "system"
)

// UserCommand is one entry of the workspace's commands.json (§6): a
// name/description pair plus the text injected into the conversation when
// invoked, and how it is injected.
type UserCommand struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Action      UserAction `json:"action"`
	Prompt      string     `json:"prompt"`
}

// LoadUserCommands reads and parses commands.json at path. A missing file
// is not an error: it returns an empty slice, since commands.json is
// optional workspace configuration (§6).
func LoadUserCommands(path string) ([]UserCommand, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("commands: reading %s: %w", path, err)
	}
	var cmds []UserCommand
	if err := json.Unmarshal(data, &cmds); err != nil {
		return nil, fmt.Errorf("commands: parsing %s: %w", path, err)
	}
	for i := range cmds {
		if cmds[i].Action == "" {
			cmds[i].Action = ActionPrompt
		}
	}
	return cmds, nil
}
