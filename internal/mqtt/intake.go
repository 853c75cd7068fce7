package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/xlightd/internal/command"
	"github.com/dokzlo13/xlightd/internal/controller"
)

// Submitter applies a validated command.
type Submitter interface {
	Submit(ctx context.Context, cmd command.Command) (controller.Result, error)
}

// CommandResult is published on {prefix}/command/result for every intake message.
type CommandResult struct {
	OK     bool               `json:"ok"`
	Error  string             `json:"error,omitempty"`
	Result *controller.Result `json:"result,omitempty"`
}

// Intake feeds commands received over MQTT into the controller.
type Intake struct {
	pub     Publisher
	topics  Topics
	ctrl    Submitter
	timeout time.Duration
}

// NewIntake creates a command intake.
func NewIntake(pub Publisher, topics Topics, ctrl Submitter, timeout time.Duration) *Intake {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Intake{pub: pub, topics: topics, ctrl: ctrl, timeout: timeout}
}

// Handle decodes, applies and answers one command message.
func (i *Intake) Handle(topic string, payload []byte) error {
	res := i.apply(payload)

	out, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return i.pub.Publish(i.topics.CommandResult(), false, out)
}

func (i *Intake) apply(payload []byte) CommandResult {
	cmd, err := command.Decode(payload)
	if err != nil {
		log.Warn().Err(err).Msg("Rejected MQTT command")
		return CommandResult{Error: err.Error()}
	}

	ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
	defer cancel()

	result, err := i.ctrl.Submit(ctx, cmd)
	if err != nil {
		log.Warn().Err(err).Stringer("command", cmd).Msg("MQTT command failed")
		return CommandResult{Error: err.Error()}
	}
	return CommandResult{OK: true, Result: &result}
}
