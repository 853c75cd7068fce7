package mqtt

import (
	"fmt"
	"strings"

	"github.com/dokzlo13/xlightd/internal/model"
)

// Topics builds topic names under a common prefix.
type Topics struct {
	Prefix string
}

// Status is the retained online/offline topic, also used as LWT.
func (t Topics) Status() string { return t.join("status") }

// Notify is where notifications for notifUID are published.
func (t Topics) Notify(notifUID model.UID) string {
	return t.join(fmt.Sprintf("notify/%d", notifUID))
}

// Action is where emitted actions are mirrored.
func (t Topics) Action() string { return t.join("action") }

// Command is the command intake topic.
func (t Topics) Command() string { return t.join("command") }

// CommandResult carries the outcome of each intake command.
func (t Topics) CommandResult() string { return t.join("command/result") }

func (t Topics) join(suffix string) string {
	prefix := strings.TrimSuffix(t.Prefix, "/")
	if prefix == "" {
		return suffix
	}
	return prefix + "/" + suffix
}
