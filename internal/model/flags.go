// Package model defines the rows held by the controller tables and the
// events emitted when a schedule fires.
package model

import "strings"

// UID identifies a row within its own table. It is assigned by the caller.
type UID uint8

// OpFlag is the operation requested for a row while a command is applied.
type OpFlag uint8

const (
	OpGet OpFlag = iota
	OpPost
	OpPut
	OpDelete
)

func (o OpFlag) String() string {
	switch o {
	case OpGet:
		return "GET"
	case OpPost:
		return "POST"
	case OpPut:
		return "PUT"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// ParseOpFlag parses a case-insensitive operation name.
func ParseOpFlag(s string) (OpFlag, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "GET":
		return OpGet, true
	case "POST":
		return OpPost, true
	case "PUT":
		return OpPut, true
	case "DELETE":
		return OpDelete, true
	}
	return OpGet, false
}

// FlashFlag tells whether the latest row value reached persistent storage.
type FlashFlag uint8

const (
	Unsaved FlashFlag = iota
	Saved
)

func (f FlashFlag) String() string {
	if f == Saved {
		return "SAVED"
	}
	return "UNSAVED"
}

// RunFlag tells whether the scheduling side effect of a row was carried out.
type RunFlag uint8

const (
	Unexecuted RunFlag = iota
	Executed
)

func (r RunFlag) String() string {
	if r == Executed {
		return "EXECUTED"
	}
	return "UNEXECUTED"
}

// Header is embedded in every uid-indexed row.
type Header struct {
	Op    OpFlag    `json:"-"`
	Flash FlashFlag `json:"-"`
	Run   RunFlag   `json:"-"`
	UID   UID       `json:"uid"`
}

// Key returns the row uid.
func (h Header) Key() UID { return h.UID }

// Outdated reports whether the row may be evicted to make room.
func (h Header) Outdated() bool { return h.Run == Executed }
