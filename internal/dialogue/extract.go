package dialogue

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/letsdeepchat/MedAppAuto/internal/clinicdata"
	"github.com/letsdeepchat/MedAppAuto/internal/schedule"
)

// DatePreference is a parsed scheduling preference. Zero minute bounds mean
// unconstrained; an empty DaysOfWeek means any day.
type DatePreference struct {
	From          time.Time
	To            time.Time
	DaysOfWeek    []time.Weekday
	AfterMinutes  int
	BeforeMinutes int
	RawText       string
}

// HasWindow reports whether the preference pins a concrete date range.
func (p DatePreference) HasWindow() bool {
	return !p.From.IsZero()
}

var dayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tues": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thurs": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

var (
	isoDateRE   = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	monthDayRE  = regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sep|sept|oct|nov|dec)\s+(\d{1,2})\b`)
	afterTimeRE = regexp.MustCompile(`after\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)?`)
	beforeRE    = regexp.MustCompile(`before\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)?`)
	bareTimeRE  = regexp.MustCompile(`(?:^|\s)(?:at\s+)?(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`)
)

var monthByName = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may": time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

// ExtractDatePreference parses a free-text date/time preference relative to
// now. The boolean is false when the text carries no usable signal.
func ExtractDatePreference(text string, now time.Time) (DatePreference, bool) {
	t := strings.ToLower(strings.TrimSpace(text))
	pref := DatePreference{RawText: t}
	matched := false

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch {
	case isoDateRE.MatchString(t):
		m := isoDateRE.FindStringSubmatch(t)
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		start := time.Date(year, time.Month(month), day, 0, 0, 0, 0, now.Location())
		pref.From, pref.To = start, start.AddDate(0, 0, 1)
		matched = true
	case monthDayRE.MatchString(t):
		m := monthDayRE.FindStringSubmatch(t)
		day, _ := strconv.Atoi(m[2])
		start := time.Date(now.Year(), monthByName[m[1]], day, 0, 0, 0, 0, now.Location())
		if start.Before(today) {
			start = start.AddDate(1, 0, 0)
		}
		pref.From, pref.To = start, start.AddDate(0, 0, 1)
		matched = true
	case strings.Contains(t, "day after tomorrow"):
		start := today.AddDate(0, 0, 2)
		pref.From, pref.To = start, start.AddDate(0, 0, 1)
		matched = true
	case strings.Contains(t, "tomorrow"):
		start := today.AddDate(0, 0, 1)
		pref.From, pref.To = start, start.AddDate(0, 0, 1)
		matched = true
	case strings.Contains(t, "today"):
		pref.From, pref.To = now, today.AddDate(0, 0, 1)
		matched = true
	case strings.Contains(t, "next week"):
		// The upcoming Monday through the following Sunday.
		daysUntilMonday := (int(time.Monday) - int(today.Weekday()) + 7) % 7
		if daysUntilMonday == 0 {
			daysUntilMonday = 7
		}
		start := today.AddDate(0, 0, daysUntilMonday)
		pref.From, pref.To = start, start.AddDate(0, 0, 7)
		matched = true
	case strings.Contains(t, "this week"):
		pref.From, pref.To = now, today.AddDate(0, 0, 7)
		matched = true
	}

	pref.DaysOfWeek = extractDaysOfWeek(t)
	if len(pref.DaysOfWeek) > 0 {
		matched = true
	}

	if m := afterTimeRE.FindStringSubmatch(t); m != nil {
		pref.AfterMinutes = clockToMinutes(m[1], m[2], m[3])
		matched = true
	} else if strings.Contains(t, "afternoon") {
		pref.AfterMinutes = 12 * 60
		matched = true
	} else if strings.Contains(t, "evening") {
		pref.AfterMinutes = 17 * 60
		matched = true
	}

	if m := beforeRE.FindStringSubmatch(t); m != nil {
		pref.BeforeMinutes = clockToMinutes(m[1], m[2], m[3])
		matched = true
	} else if strings.Contains(t, "before noon") || strings.Contains(t, "morning") {
		pref.BeforeMinutes = 12 * 60
		matched = true
	}

	if pref.AfterMinutes == 0 && pref.BeforeMinutes == 0 {
		if m := bareTimeRE.FindStringSubmatch(t); m != nil {
			// A bare "3pm" means "3pm or later".
			pref.AfterMinutes = clockToMinutes(m[1], m[2], m[3])
			matched = true
		}
	}

	if containsAny(t, "any day", "anytime", "whenever", "any time", "soonest", "as soon as possible", "asap", "earliest") {
		matched = true
	}

	return pref, matched
}

func extractDaysOfWeek(t string) []time.Weekday {
	seen := make(map[time.Weekday]bool)
	var days []time.Weekday
	add := func(d time.Weekday) {
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}

	for name, d := range dayNames {
		if wordRE(name).MatchString(t) {
			add(d)
		}
	}
	if strings.Contains(t, "weekday") {
		for d := time.Monday; d <= time.Friday; d++ {
			add(d)
		}
	}
	if strings.Contains(t, "weekend") {
		add(time.Saturday)
		add(time.Sunday)
	}

	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days
}

var wordRECache sync.Map // word -> *regexp.Regexp

func wordRE(word string) *regexp.Regexp {
	if re, ok := wordRECache.Load(word); ok {
		return re.(*regexp.Regexp)
	}
	re := regexp.MustCompile(`\b` + word + `s?\b`)
	wordRECache.Store(word, re)
	return re
}

func clockToMinutes(hourStr, minStr, ampm string) int {
	h, _ := strconv.Atoi(hourStr)
	m := 0
	if minStr != "" {
		m, _ = strconv.Atoi(minStr)
	}
	switch strings.ToLower(ampm) {
	case "pm":
		if h != 12 {
			h += 12
		}
	case "am":
		if h == 12 {
			h = 0
		}
	default:
		// Bare "after 4" in a clinic context means 4pm.
		if h >= 1 && h <= 7 {
			h += 12
		}
	}
	return h*60 + m
}

// MatchAppointmentType resolves an appointment type named anywhere in the
// text, longest name first so "specialist consultation" is not read as a
// plain consultation.
func MatchAppointmentType(ds *clinicdata.Dataset, text string) (*clinicdata.AppointmentType, bool) {
	t := strings.ToLower(text)

	sorted := make([]clinicdata.AppointmentType, len(ds.Types))
	copy(sorted, ds.Types)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i].Name) > len(sorted[j].Name) })

	for _, at := range sorted {
		if strings.Contains(t, strings.ToLower(at.Name)) {
			return mustType(ds, at.Name), true
		}
	}

	// Loose aliases for common phrasings.
	aliases := map[string]string{
		"check-up":    "General Consultation",
		"checkup":     "General Consultation",
		"general":     "General Consultation",
		"follow up":   "Follow-up",
		"followup":    "Follow-up",
		"physical":    "Physical Exam",
		"specialist":  "Specialist Consultation",
		"ecg":         "ECG",
		"ekg":         "ECG",
		"vaccine":     "Vaccinations",
		"vaccination": "Vaccinations",
		"shot":        "Vaccinations",
		"flu shot":    "Vaccinations",
	}
	for phrase, name := range aliases {
		if strings.Contains(t, phrase) {
			if at, ok := ds.TypeByName(name); ok {
				return at, true
			}
		}
	}
	return nil, false
}

func mustType(ds *clinicdata.Dataset, name string) *clinicdata.AppointmentType {
	at, _ := ds.TypeByName(name)
	return at
}

// MatchDoctor resolves a doctor mentioned by id or by name fragment.
func MatchDoctor(ds *clinicdata.Dataset, text string) (*clinicdata.Doctor, bool) {
	t := strings.ToLower(text)
	for _, d := range ds.Doctors {
		if strings.Contains(t, strings.ToLower(d.ID)) {
			return d, true
		}
		// Match on surname: "Dr. Sarah Chen" -> "chen".
		parts := strings.Fields(strings.ToLower(d.Name))
		if len(parts) > 0 && wordRE(regexp.QuoteMeta(parts[len(parts)-1])).MatchString(t) {
			return d, true
		}
	}
	return nil, false
}

var confirmationIDRE = regexp.MustCompile(`\bAPT\d{6,}\b`)

// ExtractConfirmationID pulls an APT confirmation id out of free text.
func ExtractConfirmationID(text string) (string, bool) {
	m := confirmationIDRE.FindString(strings.ToUpper(text))
	return m, m != ""
}

var selectionRE = regexp.MustCompile(`\b(\d{1,2})\b`)

var ordinalWords = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
}

// ExtractSelection reads a numbered-option choice ("2", "option 3", "the
// first one"). The boolean is false for non-numeric input.
func ExtractSelection(text string) (int, bool) {
	t := strings.ToLower(strings.TrimSpace(text))
	if m := selectionRE.FindStringSubmatch(t); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return n, true
		}
	}
	for word, n := range ordinalWords {
		if wordRE(word).MatchString(t) {
			return n, true
		}
	}
	return 0, false
}

var (
	phoneRE      = regexp.MustCompile(`\(?\+?\d[\d\-\s().]{8,}\d`)
	emailFieldRE = regexp.MustCompile(`[^\s@,]+@[^\s@,]+\.[^\s@,]+`)
	dobRE        = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	nameLabelRE  = regexp.MustCompile(`(?i)(?:my name is|name[:\s]+|i am|i'm)\s+([a-zA-Z][a-zA-Z'. -]{1,60})`)
)

// ExtractPatientInfo merges any patient fields found in the text into the
// partial record. It accepts both labeled forms ("my name is ...") and the
// compact "Name, phone, email" form.
func ExtractPatientInfo(text string, partial schedule.PatientInfo) schedule.PatientInfo {
	out := partial

	if out.Email == "" {
		if m := emailFieldRE.FindString(text); m != "" {
			out.Email = m
		}
	}
	if out.Phone == "" {
		// Ten digits minimum keeps dates like 2026-03-14 from reading as
		// phone numbers.
		if m := phoneRE.FindString(stripEmail(text)); m != "" && digitCount(m) >= 10 {
			out.Phone = strings.TrimSpace(m)
		}
	}
	if out.DateOfBirth == "" {
		// A date only reads as a birth date when labeled; otherwise it could
		// be a preferred appointment date.
		lower := strings.ToLower(text)
		if strings.Contains(lower, "born") || strings.Contains(lower, "birth") || strings.Contains(lower, "dob") {
			if m := dobRE.FindString(text); m != "" {
				out.DateOfBirth = m
			}
		}
	}
	if out.Name == "" {
		if m := nameLabelRE.FindStringSubmatch(text); m != nil {
			out.Name = strings.TrimSpace(trimAtPhone(m[1]))
		} else if parts := strings.Split(text, ","); len(parts) >= 2 {
			cand := strings.TrimSpace(parts[0])
			if cand != "" && !strings.ContainsAny(cand, "@0123456789") && len(strings.Fields(cand)) <= 4 {
				out.Name = cand
			}
		}
	}
	return out
}

func digitCount(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

func stripEmail(text string) string {
	return emailFieldRE.ReplaceAllString(text, "")
}

// trimAtPhone cuts a captured name at a trailing phone/email run.
func trimAtPhone(name string) string {
	if i := strings.IndexAny(name, "0123456789@"); i > 0 {
		name = name[:i]
	}
	return strings.Trim(name, " ,.")
}

// MissingPatientFields lists the required fields not yet collected.
func MissingPatientFields(p schedule.PatientInfo) []string {
	var missing []string
	if strings.TrimSpace(p.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(p.Phone) == "" {
		missing = append(missing, "phone number")
	}
	if strings.TrimSpace(p.Email) == "" {
		missing = append(missing, "email")
	}
	return missing
}

// IsAffirmative and IsNegative interpret confirmation replies.
func IsAffirmative(text string) bool {
	t := strings.ToLower(strings.TrimSpace(strings.Trim(text, "!. ")))
	switch t {
	case "yes", "y", "yes please", "yep", "yeah", "sure", "confirm", "confirmed", "correct", "ok", "okay", "sounds good", "that works", "go ahead", "book it":
		return true
	}
	return strings.HasPrefix(t, "yes,") || strings.HasPrefix(t, "yes ")
}

func IsNegative(text string) bool {
	t := strings.ToLower(strings.TrimSpace(strings.Trim(text, "!. ")))
	switch t {
	case "no", "n", "nope", "nah", "no thanks", "cancel that", "never mind", "nevermind", "not yet", "wrong":
		return true
	}
	return strings.HasPrefix(t, "no,") || strings.HasPrefix(t, "no ")
}

// FormatClock renders minutes-since-midnight as a 24h clock string.
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
