package notify

import (
	"fmt"
	"strings"
	"time"

	"docent-tagalong/internal/domain"
)

// Message 一封待发送的邮件（纯文本）
type Message struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

func (m Message) Valid() bool { return len(m.To) > 0 && m.Subject != "" }

const humanDate = "Monday, January 2, 2006"

// TagFilledEmail 通知双方讲解员：一封邮件同时发给两人
func TagFilledEmail(tr domain.TagRequest, newDocent, seasoned domain.User) Message {
	date := tr.Date.Time().Format(humanDate)
	nd, sd := newDocent.FullName(), seasoned.FullName()

	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s and %s,\n\n", nd, sd)
	b.WriteString("A tag-along has been scheduled for:\n\n")
	fmt.Fprintf(&b, "Date: %s\nTime: %s\n\n", date, tr.TimeSlot)
	fmt.Fprintf(&b, "New Docent: %s (%s)\n", nd, newDocent.Email)
	fmt.Fprintf(&b, "Seasoned Docent: %s (%s)\n\n", sd, seasoned.Email)
	if tr.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n\n", tr.Notes)
	}
	b.WriteString("Please communicate directly to agree on a specific meeting time and location within the Zoo.\n\n")
	b.WriteString("If you need to cancel or reschedule, please do so at least 24 hours in advance through the SF Zoo Docent Matching app.\n\n")
	b.WriteString("Thank you for your participation in the docent program!\n\n")
	b.WriteString("Best regards,\nSF Zoo Docent Program Coordinator\n")

	return Message{
		To:      []string{newDocent.Email, seasoned.Email},
		Subject: fmt.Sprintf("SF Zoo Tag-Along Scheduled: %s (%s)", date, tr.TimeSlot),
		Body:    b.String(),
	}
}

// PasswordResetEmail ttl 与令牌实际有效期一致
func PasswordResetEmail(u domain.User, link string, ttl time.Duration) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", u.FullName())
	b.WriteString("You (or someone else) has requested a password reset for your SF Zoo Docent Matching account.\n\n")
	b.WriteString("To reset your password, please click on the link below:\n\n")
	b.WriteString(link + "\n\n")
	fmt.Fprintf(&b, "This link will expire in %s.\n\n", humanDuration(ttl))
	b.WriteString("If you did not request a password reset, please ignore this email.\n\n")
	b.WriteString("Best regards,\nSF Zoo Docent Program Coordinator\n")
	return Message{
		To:      []string{u.Email},
		Subject: "SF Zoo Docent Matching - Password Reset",
		Body:    b.String(),
	}
}

func humanDuration(d time.Duration) string {
	plural := func(n int64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int64(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int64(d/time.Minute), "minute")
	}
	return d.String()
}
