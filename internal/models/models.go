// Package models defines the domain record types shared across the offline
// queue and the read-through cache.
//
// Records that can round-trip through the cache implement GenericCodec: an
// explicit conversion to and from the generic map form that is stored as JSON.
package models

import (
	"time"
)

// Type tags used in cache reconstruction metadata. Stable wire identifiers;
// renaming a Go type must not change its tag.
const (
	TypeTagMember        = "Member"
	TypeTagPayment       = "Payment"
	TypeTagAttendance    = "Attendance"
	TypeTagClassSchedule = "ClassSchedule"
)

// Member is a gym member record.
type Member struct {
	ID       int64     `json:"id"`
	Name     string    `json:"name"`
	Phone    string    `json:"phone"`
	Email    string    `json:"email"`
	Status   string    `json:"status"`
	JoinedAt time.Time `json:"joined_at"`
}

func (m Member) TypeTag() string { return TypeTagMember }

func (m Member) ToGeneric() map[string]any {
	return map[string]any{
		"id":        m.ID,
		"name":      m.Name,
		"phone":     m.Phone,
		"email":     m.Email,
		"status":    m.Status,
		"joined_at": m.JoinedAt.UTC().Format(time.RFC3339Nano),
	}
}

// MemberFromGeneric rebuilds a Member from its generic map form.
// Missing fields are left at their zero value.
func MemberFromGeneric(data map[string]any) (any, error) {
	return Member{
		ID:       intField(data, "id"),
		Name:     stringField(data, "name"),
		Phone:    stringField(data, "phone"),
		Email:    stringField(data, "email"),
		Status:   stringField(data, "status"),
		JoinedAt: timeField(data, "joined_at"),
	}, nil
}

// Payment is a membership payment record.
type Payment struct {
	ID       int64     `json:"id"`
	MemberID int64     `json:"member_id"`
	Amount   float64   `json:"amount"`
	Method   string    `json:"method"`
	Concept  string    `json:"concept"`
	PaidAt   time.Time `json:"paid_at"`
}

func (p Payment) TypeTag() string { return TypeTagPayment }

func (p Payment) ToGeneric() map[string]any {
	return map[string]any{
		"id":        p.ID,
		"member_id": p.MemberID,
		"amount":    p.Amount,
		"method":    p.Method,
		"concept":   p.Concept,
		"paid_at":   p.PaidAt.UTC().Format(time.RFC3339Nano),
	}
}

// PaymentFromGeneric rebuilds a Payment from its generic map form.
func PaymentFromGeneric(data map[string]any) (any, error) {
	return Payment{
		ID:       intField(data, "id"),
		MemberID: intField(data, "member_id"),
		Amount:   floatField(data, "amount"),
		Method:   stringField(data, "method"),
		Concept:  stringField(data, "concept"),
		PaidAt:   timeField(data, "paid_at"),
	}, nil
}

// Attendance is a check-in record.
type Attendance struct {
	ID        int64     `json:"id"`
	MemberID  int64     `json:"member_id"`
	CheckedAt time.Time `json:"checked_at"`
}

func (a Attendance) TypeTag() string { return TypeTagAttendance }

func (a Attendance) ToGeneric() map[string]any {
	return map[string]any{
		"id":         a.ID,
		"member_id":  a.MemberID,
		"checked_at": a.CheckedAt.UTC().Format(time.RFC3339Nano),
	}
}

// AttendanceFromGeneric rebuilds an Attendance from its generic map form.
func AttendanceFromGeneric(data map[string]any) (any, error) {
	return Attendance{
		ID:        intField(data, "id"),
		MemberID:  intField(data, "member_id"),
		CheckedAt: timeField(data, "checked_at"),
	}, nil
}

// ClassSchedule is one weekly time slot of a gym class.
type ClassSchedule struct {
	ID      int64  `json:"id"`
	ClassID int64  `json:"class_id"`
	Weekday int    `json:"weekday"`
	Start   string `json:"start"`
	End     string `json:"end"`
	Trainer string `json:"trainer"`
}

func (c ClassSchedule) TypeTag() string { return TypeTagClassSchedule }

func (c ClassSchedule) ToGeneric() map[string]any {
	return map[string]any{
		"id":       c.ID,
		"class_id": c.ClassID,
		"weekday":  c.Weekday,
		"start":    c.Start,
		"end":      c.End,
		"trainer":  c.Trainer,
	}
}

// ClassScheduleFromGeneric rebuilds a ClassSchedule from its generic map form.
func ClassScheduleFromGeneric(data map[string]any) (any, error) {
	return ClassSchedule{
		ID:      intField(data, "id"),
		ClassID: intField(data, "class_id"),
		Weekday: int(intField(data, "weekday")),
		Start:   stringField(data, "start"),
		End:     stringField(data, "end"),
		Trainer: stringField(data, "trainer"),
	}, nil
}
