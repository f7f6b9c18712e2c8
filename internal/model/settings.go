package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// TimeOfDay is a wall-clock time between 00:00 and 23:59. It is serialized
// as "HH:MM:SS" on the wire.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
}

// Valid reports whether t is within 00:00 to 23:59.
func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour <= 23 && t.Minute >= 0 && t.Minute <= 59
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) minutes() int {
	return t.Hour*60 + t.Minute
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(fmt.Sprintf("%02d:%02d:00", t.Hour, t.Minute))
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("time of day: %w", err)
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// LeadTime is a reminder lead time token such as "30m", "1h", "1d" or "1w".
type LeadTime string

var leadTimePattern = regexp.MustCompile(`^([1-9][0-9]*)([mhdw])$`)

// Duration converts the token to a time.Duration.
func (l LeadTime) Duration() (time.Duration, error) {
	m := leadTimePattern.FindStringSubmatch(string(l))
	if m == nil {
		return 0, fmt.Errorf("invalid lead time %q", l)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("invalid lead time %q: %w", l, err)
	}
	unit := map[string]time.Duration{
		"m": time.Minute,
		"h": time.Hour,
		"d": 24 * time.Hour,
		"w": 7 * 24 * time.Hour,
	}[m[2]]
	return time.Duration(n) * unit, nil
}

// ValidateLeadTimes checks every token parses and none repeats.
func ValidateLeadTimes(lts []LeadTime) error {
	seen := make(map[LeadTime]struct{}, len(lts))
	for _, lt := range lts {
		if _, err := lt.Duration(); err != nil {
			return err
		}
		if _, ok := seen[lt]; ok {
			return fmt.Errorf("duplicate lead time %q", lt)
		}
		seen[lt] = struct{}{}
	}
	return nil
}

// NotificationSettings are one user's notification preferences.
type NotificationSettings struct {
	BrowserEnabled    bool       `json:"browserEnabled"`
	ToastEnabled      bool       `json:"toastEnabled"`
	ReminderLeadTimes []LeadTime `json:"reminderLeadTimes"`
	QuietHoursStart   TimeOfDay  `json:"quietHoursStart"`
	QuietHoursEnd     TimeOfDay  `json:"quietHoursEnd"`
	WeekdaysOnly      bool       `json:"weekdaysOnly"`
	SoundEnabled      bool       `json:"soundEnabled"`
}

// DefaultNotificationSettings is used on first load and whenever the remote
// settings cannot be fetched.
func DefaultNotificationSettings() NotificationSettings {
	return NotificationSettings{
		BrowserEnabled:    true,
		ToastEnabled:      true,
		ReminderLeadTimes: []LeadTime{"1h", "30m"},
		QuietHoursStart:   TimeOfDay{Hour: 22},
		QuietHoursEnd:     TimeOfDay{Hour: 8},
		WeekdaysOnly:      false,
		SoundEnabled:      true,
	}
}

// Validate checks the lead time set and the quiet hours bounds.
func (s NotificationSettings) Validate() error {
	if err := ValidateLeadTimes(s.ReminderLeadTimes); err != nil {
		return err
	}
	if !s.QuietHoursStart.Valid() || !s.QuietHoursEnd.Valid() {
		return errors.New("quiet hours out of range")
	}
	return nil
}

// InQuietHours reports whether now falls inside the quiet window. The
// window may wrap midnight; equal start and end means there is no window.
func (s NotificationSettings) InQuietHours(now time.Time) bool {
	start, end := s.QuietHoursStart.minutes(), s.QuietHoursEnd.minutes()
	if start == end {
		return false
	}
	cur := now.Hour()*60 + now.Minute()
	if start < end {
		return cur >= start && cur < end
	}
	return cur >= start || cur < end
}

// DeliveryAllowed combines the quiet hours and weekdays-only rules.
func (s NotificationSettings) DeliveryAllowed(now time.Time) bool {
	if s.WeekdaysOnly {
		if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return false
		}
	}
	return !s.InQuietHours(now)
}

// SettingsPatch is a partial update. Nil fields are left untouched.
type SettingsPatch struct {
	BrowserEnabled    *bool       `json:"browserEnabled,omitempty"`
	ToastEnabled      *bool       `json:"toastEnabled,omitempty"`
	ReminderLeadTimes *[]LeadTime `json:"reminderLeadTimes,omitempty"`
	QuietHoursStart   *TimeOfDay  `json:"quietHoursStart,omitempty"`
	QuietHoursEnd     *TimeOfDay  `json:"quietHoursEnd,omitempty"`
	WeekdaysOnly      *bool       `json:"weekdaysOnly,omitempty"`
	SoundEnabled      *bool       `json:"soundEnabled,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p SettingsPatch) IsEmpty() bool {
	return p.BrowserEnabled == nil && p.ToastEnabled == nil && p.ReminderLeadTimes == nil &&
		p.QuietHoursStart == nil && p.QuietHoursEnd == nil && p.WeekdaysOnly == nil &&
		p.SoundEnabled == nil
}

// Validate checks the fields the patch sets.
func (p SettingsPatch) Validate() error {
	if p.ReminderLeadTimes != nil {
		if err := ValidateLeadTimes(*p.ReminderLeadTimes); err != nil {
			return err
		}
	}
	if p.QuietHoursStart != nil && !p.QuietHoursStart.Valid() {
		return fmt.Errorf("quiet hours start %s out of range", p.QuietHoursStart)
	}
	if p.QuietHoursEnd != nil && !p.QuietHoursEnd.Valid() {
		return fmt.Errorf("quiet hours end %s out of range", p.QuietHoursEnd)
	}
	return nil
}

// Diff returns the subset of p whose serialized value differs from cur.
func (p SettingsPatch) Diff(cur NotificationSettings) SettingsPatch {
	var d SettingsPatch
	if p.BrowserEnabled != nil && changed(*p.BrowserEnabled, cur.BrowserEnabled) {
		d.BrowserEnabled = p.BrowserEnabled
	}
	if p.ToastEnabled != nil && changed(*p.ToastEnabled, cur.ToastEnabled) {
		d.ToastEnabled = p.ToastEnabled
	}
	if p.ReminderLeadTimes != nil && changed(*p.ReminderLeadTimes, cur.ReminderLeadTimes) {
		d.ReminderLeadTimes = p.ReminderLeadTimes
	}
	if p.QuietHoursStart != nil && changed(*p.QuietHoursStart, cur.QuietHoursStart) {
		d.QuietHoursStart = p.QuietHoursStart
	}
	if p.QuietHoursEnd != nil && changed(*p.QuietHoursEnd, cur.QuietHoursEnd) {
		d.QuietHoursEnd = p.QuietHoursEnd
	}
	if p.WeekdaysOnly != nil && changed(*p.WeekdaysOnly, cur.WeekdaysOnly) {
		d.WeekdaysOnly = p.WeekdaysOnly
	}
	if p.SoundEnabled != nil && changed(*p.SoundEnabled, cur.SoundEnabled) {
		d.SoundEnabled = p.SoundEnabled
	}
	return d
}

// Apply returns s with every field set in p overwritten.
func (p SettingsPatch) Apply(s NotificationSettings) NotificationSettings {
	if p.BrowserEnabled != nil {
		s.BrowserEnabled = *p.BrowserEnabled
	}
	if p.ToastEnabled != nil {
		s.ToastEnabled = *p.ToastEnabled
	}
	if p.ReminderLeadTimes != nil {
		s.ReminderLeadTimes = append([]LeadTime(nil), (*p.ReminderLeadTimes)...)
	}
	if p.QuietHoursStart != nil {
		s.QuietHoursStart = *p.QuietHoursStart
	}
	if p.QuietHoursEnd != nil {
		s.QuietHoursEnd = *p.QuietHoursEnd
	}
	if p.WeekdaysOnly != nil {
		s.WeekdaysOnly = *p.WeekdaysOnly
	}
	if p.SoundEnabled != nil {
		s.SoundEnabled = *p.SoundEnabled
	}
	return s
}

func changed(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return true
	}
	return !bytes.Equal(ja, jb)
}

// Clone returns a copy that shares no slices with s.
func (s NotificationSettings) Clone() NotificationSettings {
	s.ReminderLeadTimes = append([]LeadTime(nil), s.ReminderLeadTimes...)
	return s
}
