package domain

import (
	"fmt"
	"strings"
)

// TimeSlot 每天固定两个时段
type TimeSlot string

const (
	SlotAM TimeSlot = "AM"
	SlotPM TimeSlot = "PM"
)

var TimeSlots = []TimeSlot{SlotAM, SlotPM}

func (s TimeSlot) Valid() bool { return s == SlotAM || s == SlotPM }

func ParseTimeSlot(s string) (TimeSlot, error) {
	ts := TimeSlot(strings.TrimSpace(s))
	if !ts.Valid() {
		return "", fmt.Errorf("%w: timeSlot %q must be AM or PM", ErrInvalidInput, s)
	}
	return ts, nil
}

// Slot 是可预约的最小单位：某天的上午或下午
type Slot struct {
	Date     Date     `json:"date"`
	TimeSlot TimeSlot `json:"timeSlot"`
}

func (s Slot) String() string { return s.Date.String() + " " + string(s.TimeSlot) }

// Status 只有两个存储态；取消即删除
type Status string

const (
	StatusRequested Status = "requested"
	StatusFilled    Status = "filled"

	// StatusCancelled 仅作为请求动作出现，不会落库
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool { return s == StatusRequested || s == StatusFilled }

func ParseStatus(s string) (Status, error) {
	st := Status(strings.TrimSpace(s))
	if st != StatusRequested && st != StatusFilled && st != StatusCancelled {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, s)
	}
	return st, nil
}
