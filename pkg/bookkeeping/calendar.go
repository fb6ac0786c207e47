package bookkeeping

import "time"

// SettlementCalendar decides whether a date is safe to anchor an
// autocorrection on. Transfers sent around weekends and holidays can be
// reported by the bank before they settle, so a balance mismatch seen on
// such a day may resolve itself on the next business day.
type SettlementCalendar interface {
	SettlementSafe(t time.Time) bool
}

// PolishCalendar is a SettlementCalendar for accounts settled under the
// Polish banking calendar.
type PolishCalendar struct{}

// SettlementSafe reports whether t falls mid-week with no Polish public
// holiday on the day itself or on either adjacent day.
func (PolishCalendar) SettlementSafe(t time.Time) bool {
	switch t.Weekday() {
	case time.Tuesday, time.Wednesday, time.Thursday:
	default:
		return false
	}
	for _, d := range []time.Time{t.AddDate(0, 0, -1), t, t.AddDate(0, 0, 1)} {
		if isPolishHoliday(d) {
			return false
		}
	}
	return true
}

// isPolishHoliday reports whether the date is a Polish public holiday.
func isPolishHoliday(t time.Time) bool {
	day, month := t.Day(), t.Month()
	switch {
	case month == time.January && (day == 1 || day == 6),
		month == time.May && (day == 1 || day == 3),
		month == time.August && day == 15,
		month == time.November && (day == 1 || day == 11),
		month == time.December && (day == 25 || day == 26):
		return true
	}

	easter := easterSunday(t.Year())
	for _, offset := range []int{0, 1, 49, 60} { // Easter, Easter Monday, Pentecost, Corpus Christi
		h := easter.AddDate(0, 0, offset)
		if h.Month() == month && h.Day() == day {
			return true
		}
	}
	return false
}

// easterSunday computes Gregorian Easter via the anonymous computus.
func easterSunday(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}
