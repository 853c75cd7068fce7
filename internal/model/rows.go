package model

import (
	"fmt"
	"time"

	"github.com/dokzlo13/xlightd/internal/alarm"
)

// Capacities of the rule and scenario tables.
const (
	DefaultRuleCapacity     = 128
	DefaultScenarioCapacity = 128
)

// ScheduleRowSize is the packed size of a schedule row in the persisted region:
// header (2), weekdays (1), repeat (1), hour (1), min (1), alarm handle (4).
const ScheduleRowSize = 10

// DefaultScheduleRegionBytes is the byte budget reserved for the schedule table.
const DefaultScheduleRegionBytes = 1024

// ScheduleCapacity derives the schedule table capacity from a region byte budget.
func ScheduleCapacity(regionBytes int) int {
	return regionBytes / ScheduleRowSize
}

// Weekday is 0 for daily, otherwise 1=Monday through 7=Sunday.
type Weekday uint8

// Daily marks a schedule firing every day. Only valid for repeating schedules.
const Daily Weekday = 0

// Valid reports whether d is in the 0-7 range.
func (d Weekday) Valid() bool { return d <= 7 }

// Time converts a specific weekday (1-7) to time.Weekday.
func (d Weekday) Time() time.Weekday { return time.Weekday(d % 7) }

func (d Weekday) String() string {
	if d == Daily {
		return "daily"
	}
	if !d.Valid() {
		return fmt.Sprintf("weekday(%d)", uint8(d))
	}
	return d.Time().String()
}

// Hue is the color spec of one lamp ring: on/off plus five channel levels.
type Hue struct {
	State bool  `json:"state"`
	CW    uint8 `json:"cw"`
	WW    uint8 `json:"ww"`
	R     uint8 `json:"r"`
	G     uint8 `json:"g"`
	B     uint8 `json:"b"`
}

// Rings holds the three ring specs of a lamp.
type Rings [3]Hue

// RuleRow reads: when schedule ScheduleUID fires, apply ScenarioUID and notify NotifUID.
type RuleRow struct {
	Header
	ScheduleUID UID `json:"schedule_uid"`
	ScenarioUID UID `json:"scenario_uid"`
	NotifUID    UID `json:"notif_uid"`
}

// ScheduleRow is a point in the week, optionally repeating.
type ScheduleRow struct {
	Header
	Weekdays Weekday      `json:"weekdays"`
	IsRepeat bool         `json:"is_repeat"`
	Hour     uint8        `json:"hour"`
	Min      uint8        `json:"min"`
	Alarm    alarm.Handle `json:"-"`
}

// Outdated reports whether the schedule already fired its single shot.
// Repeating schedules are never outdated.
func (s ScheduleRow) Outdated() bool {
	return s.Run == Executed && !s.IsRepeat
}

// ScenarioRow is a lighting preset applied when a rule fires.
type ScenarioRow struct {
	Header
	Rings  Rings `json:"rings"`
	Filter uint8 `json:"filter"`
}

// DeviceStatusRow is the single current-device row. Last write wins.
type DeviceStatusRow struct {
	Op    OpFlag    `json:"-"`
	Flash FlashFlag `json:"-"`
	ID    uint8     `json:"id"`
	Type  uint8     `json:"type"`
	Rings Rings     `json:"rings"`
}
