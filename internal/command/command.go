// Package command is the boundary between the outside world and the
// controller core. It decodes wire requests into strongly typed,
// range-validated commands; nothing unvalidated reaches the core.
package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dokzlo13/xlightd/internal/model"
)

var (
	// ErrUnknownClass is returned when the uid prefix names no entity class.
	ErrUnknownClass = errors.New("command: unknown entity class")

	// ErrUnknownOp is returned for operation names other than GET, POST, PUT, DELETE.
	ErrUnknownOp = errors.New("command: unknown operation")
)

// ValidationError reports an out-of-range or malformed field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Class is the entity kind a command targets.
type Class string

const (
	ClassRule     Class = "rule"
	ClassSchedule Class = "schedule"
	ClassScenario Class = "scenario"
	ClassDevice   Class = "device"
)

var prefixes = map[byte]Class{
	'r': ClassRule,
	's': ClassSchedule,
	'n': ClassScenario,
	'd': ClassDevice,
}

// ParseUID splits a prefixed uid such as "r12" into its class and number.
// Device status is a single row, so "d" may carry no number.
func ParseUID(s string) (Class, model.UID, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return "", 0, invalid("uid", "empty")
	}
	class, ok := prefixes[s[0]]
	if !ok {
		return "", 0, fmt.Errorf("%q: %w", s, ErrUnknownClass)
	}
	rest := s[1:]
	if class == ClassDevice && rest == "" {
		return class, 0, nil
	}
	if rest == "" || rest[0] < '0' || rest[0] > '9' {
		return "", 0, invalid("uid", "%q is not a prefixed number", s)
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return "", 0, invalid("uid", "%q is not a prefixed number", s)
	}
	if n < 0 || n > 255 {
		return "", 0, invalid("uid", "%d out of range 0-255", n)
	}
	return class, model.UID(n), nil
}

// Ring is the wire form of one ring color spec.
type Ring struct {
	State bool `json:"state"`
	CW    int  `json:"cw"`
	WW    int  `json:"ww"`
	R     int  `json:"r"`
	G     int  `json:"g"`
	B     int  `json:"b"`
}

// Request is the wire form of a command. Fields irrelevant to the class are ignored.
type Request struct {
	UID string `json:"uid"`
	Op  string `json:"op"`

	// Rule
	ScheduleUID int `json:"schedule_uid"`
	ScenarioUID int `json:"scenario_uid"`
	NotifUID    int `json:"notif_uid"`

	// Schedule
	Weekdays int  `json:"weekdays"`
	IsRepeat bool `json:"is_repeat"`
	Hour     int  `json:"hour"`
	Min      int  `json:"min"`

	// Scenario and device status
	Rings  []Ring `json:"rings"`
	Filter int    `json:"filter"`

	// Device status
	DeviceID   int `json:"id"`
	DeviceType int `json:"type"`
}

// Command is a validated request. Exactly one row pointer matching Class is set.
type Command struct {
	Class Class
	Op    model.OpFlag
	UID   model.UID

	Rule     *model.RuleRow
	Schedule *model.ScheduleRow
	Scenario *model.ScenarioRow
	Device   *model.DeviceStatusRow
}

func (c Command) String() string {
	return fmt.Sprintf("%s %s %d", c.Op, c.Class, c.UID)
}

// Decode parses and validates a JSON request.
func Decode(data []byte) (Command, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Command{}, invalid("body", "%v", err)
	}
	return req.Validate()
}

// Validate checks every field relevant to the request class and builds the command.
// Rows come out UNSAVED and UNEXECUTED.
func (r Request) Validate() (Command, error) {
	class, uid, err := ParseUID(r.UID)
	if err != nil {
		return Command{}, err
	}
	// Device status is a single row, so a bare write replaces it.
	op := model.OpPost
	if class == ClassDevice {
		op = model.OpPut
	}
	if r.Op != "" {
		var ok bool
		if op, ok = model.ParseOpFlag(r.Op); !ok {
			return Command{}, fmt.Errorf("%q: %w", r.Op, ErrUnknownOp)
		}
	}

	cmd := Command{Class: class, Op: op, UID: uid}
	header := model.Header{Op: op, Flash: model.Unsaved, Run: model.Unexecuted, UID: uid}

	// GET and DELETE only need the key.
	keyOnly := op == model.OpGet || op == model.OpDelete

	switch class {
	case ClassRule:
		row := model.RuleRow{Header: header}
		if !keyOnly {
			if row.ScheduleUID, err = uidField("schedule_uid", r.ScheduleUID); err != nil {
				return Command{}, err
			}
			if row.ScenarioUID, err = uidField("scenario_uid", r.ScenarioUID); err != nil {
				return Command{}, err
			}
			if row.NotifUID, err = uidField("notif_uid", r.NotifUID); err != nil {
				return Command{}, err
			}
		}
		cmd.Rule = &row

	case ClassSchedule:
		row := model.ScheduleRow{Header: header}
		if !keyOnly {
			if row, err = r.schedule(header); err != nil {
				return Command{}, err
			}
		}
		cmd.Schedule = &row

	case ClassScenario:
		row := model.ScenarioRow{Header: header}
		if !keyOnly {
			if row.Rings, err = rings(r.Rings); err != nil {
				return Command{}, err
			}
			if row.Filter, err = byteField("filter", r.Filter); err != nil {
				return Command{}, err
			}
		}
		cmd.Scenario = &row

	case ClassDevice:
		if op != model.OpGet && op != model.OpPut {
			return Command{}, invalid("op", "device status supports GET and PUT only")
		}
		row := model.DeviceStatusRow{Op: op, Flash: model.Unsaved}
		if op == model.OpPut {
			if row.ID, err = byteField("id", r.DeviceID); err != nil {
				return Command{}, err
			}
			if row.Type, err = byteField("type", r.DeviceType); err != nil {
				return Command{}, err
			}
			if row.Rings, err = rings(r.Rings); err != nil {
				return Command{}, err
			}
		}
		cmd.Device = &row
	}
	return cmd, nil
}

func (r Request) schedule(header model.Header) (model.ScheduleRow, error) {
	if r.Weekdays < 0 || r.Weekdays > 7 {
		return model.ScheduleRow{}, invalid("weekdays", "%d out of range 0-7", r.Weekdays)
	}
	if !r.IsRepeat && r.Weekdays == 0 {
		return model.ScheduleRow{}, invalid("weekdays", "one-shot schedule needs a weekday 1-7")
	}
	if r.Hour < 0 || r.Hour > 23 {
		return model.ScheduleRow{}, invalid("hour", "%d out of range 0-23", r.Hour)
	}
	if r.Min < 0 || r.Min > 59 {
		return model.ScheduleRow{}, invalid("min", "%d out of range 0-59", r.Min)
	}
	return model.ScheduleRow{
		Header:   header,
		Weekdays: model.Weekday(r.Weekdays),
		IsRepeat: r.IsRepeat,
		Hour:     uint8(r.Hour),
		Min:      uint8(r.Min),
	}, nil
}

func rings(in []Ring) (model.Rings, error) {
	var out model.Rings
	if len(in) > len(out) {
		return out, invalid("rings", "at most %d rings, got %d", len(out), len(in))
	}
	for i, ring := range in {
		field := func(name string) string { return fmt.Sprintf("rings[%d].%s", i, name) }
		channels := []struct {
			name string
			v    int
			dst  *uint8
		}{
			{"cw", ring.CW, &out[i].CW},
			{"ww", ring.WW, &out[i].WW},
			{"r", ring.R, &out[i].R},
			{"g", ring.G, &out[i].G},
			{"b", ring.B, &out[i].B},
		}
		for _, ch := range channels {
			v, err := byteField(field(ch.name), ch.v)
			if err != nil {
				return out, err
			}
			*ch.dst = v
		}
		out[i].State = ring.State
	}
	return out, nil
}

func byteField(name string, v int) (uint8, error) {
	if v < 0 || v > 255 {
		return 0, invalid(name, "%d out of range 0-255", v)
	}
	return uint8(v), nil
}

func uidField(name string, v int) (model.UID, error) {
	b, err := byteField(name, v)
	return model.UID(b), err
}
