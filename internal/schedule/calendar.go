// Package schedule 负责日历窗口和“哪天还能操作”的日期规则。
// 创建与接受/删除的截止规则都定义在 Policy 上，UI 置灰和状态机共用同一份判断。
package schedule

import (
	"fmt"
	"time"

	"docent-tagalong/internal/domain"
)

// WeeksShown 日历固定展示 5 个完整周（周日开始）
const WeeksShown = 5

type Range struct {
	Start domain.Date `json:"start"`
	End   domain.Date `json:"end"`
}

func StartOfWeek(d domain.Date) domain.Date { return d.AddDays(-int(d.Weekday())) }
func EndOfWeek(d domain.Date) domain.Date   { return StartOfWeek(d).AddDays(6) }

// ResolveRange 以 ref 所在周为第一周，向后共 5 周
func ResolveRange(ref domain.Date) Range {
	return Range{
		Start: StartOfWeek(ref),
		End:   EndOfWeek(ref.AddDays(7 * (WeeksShown - 1))),
	}
}

func (r Range) Len() int { return r.Start.DaysUntil(r.End) + 1 }

func (r Range) Contains(d domain.Date) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

func (r Range) Days() []domain.Date {
	n := r.Len()
	if n <= 0 {
		return nil
	}
	days := make([]domain.Date, 0, n)
	for d := r.Start; !d.After(r.End); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

// Weeks 按 7 天一组切分；不足一周的尾部丢弃
func (r Range) Weeks() [][]domain.Date {
	days := r.Days()
	weeks := make([][]domain.Date, 0, len(days)/7)
	for i := 0; i+7 <= len(days); i += 7 {
		weeks = append(weeks, days[i:i+7])
	}
	return weeks
}

// Policy 把“现在”换算成配置时区下的今天
type Policy struct {
	Location *time.Location
	Now      func() time.Time
}

func NewPolicy(loc *time.Location, now func() time.Time) Policy {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	return Policy{Location: loc, Now: now}
}

func (p Policy) Today() domain.Date {
	return domain.DateOf(p.Now().In(p.Location))
}

// Selectable 今天及以前都不可新建，只有严格晚于今天的日子可以
func (p Policy) Selectable(d domain.Date) bool { return d.After(p.Today()) }

// Changeable 接受/删除需要至少一整天的余量：最早是后天
func (p Policy) Changeable(d domain.Date) bool { return d.After(p.Today().AddDays(1)) }

func (p Policy) CheckCreate(d domain.Date) error {
	if !p.Selectable(d) {
		return fmt.Errorf("%w: tag requests must be for a day after %s", domain.ErrPastDate, p.Today())
	}
	return nil
}

func (p Policy) CheckChange(d domain.Date, action string) error {
	if !p.Changeable(d) {
		return fmt.Errorf("%w: cannot %s a tag request less than one full day ahead (earliest %s)",
			domain.ErrPastDate, action, p.Today().AddDays(2))
	}
	return nil
}

// Day 日历格子；Past 包含今天（今天同样不可选）
type Day struct {
	Date       domain.Date `json:"date"`
	Past       bool        `json:"past"`
	Today      bool        `json:"today"`
	Selectable bool        `json:"selectable"`
	Changeable bool        `json:"changeable"`
}

func (p Policy) Classify(r Range) []Day {
	today := p.Today()
	days := r.Days()
	out := make([]Day, 0, len(days))
	for _, d := range days {
		out = append(out, Day{
			Date:       d,
			Past:       !d.After(today),
			Today:      d.Equal(today),
			Selectable: d.After(today),
			Changeable: d.After(today.AddDays(1)),
		})
	}
	return out
}
