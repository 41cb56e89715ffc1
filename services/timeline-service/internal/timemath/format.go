package timemath

import (
	"fmt"
	"time"

	"golang.org/x/text/language"
)

type Locale string

const (
	Hebrew  Locale = "he"
	English Locale = "en"
)

var localeMatcher = language.NewMatcher([]language.Tag{language.Hebrew, language.English})

// ParseLocale matches a BCP 47 tag or Accept-Language value against the
// supported locales, falling back to Hebrew.
func ParseLocale(raw string) Locale {
	tags, _, err := language.ParseAcceptLanguage(raw)
	if err != nil || len(tags) == 0 {
		return Hebrew
	}
	_, idx, conf := localeMatcher.Match(tags...)
	if conf == language.No {
		return Hebrew
	}
	if idx == 1 {
		return English
	}
	return Hebrew
}

func (l Locale) Tag() language.Tag {
	if l == English {
		return language.English
	}
	return language.Hebrew
}

type dateNames struct {
	weekdays [7]string
	months   [12]string
}

var localeNames = map[Locale]dateNames{
	Hebrew: {
		weekdays: [7]string{"יום ראשון", "יום שני", "יום שלישי", "יום רביעי", "יום חמישי", "יום שישי", "יום שבת"},
		months:   [12]string{"ינואר", "פברואר", "מרץ", "אפריל", "מאי", "יוני", "יולי", "אוגוסט", "ספטמבר", "אוקטובר", "נובמבר", "דצמבר"},
	},
	English: {
		weekdays: [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"},
		months:   [12]string{"January", "February", "March", "April", "May", "June", "July", "August", "September", "October", "November", "December"},
	},
}

// FormatLocalizedDate renders "<weekday> · <d> <month> <yyyy>".
func (z *Zone) FormatLocalizedDate(t time.Time, locale Locale) string {
	names, ok := localeNames[locale]
	if !ok {
		names = localeNames[Hebrew]
	}
	local := t.In(z.loc)
	return fmt.Sprintf("%s · %d %s %d",
		names.weekdays[local.Weekday()], local.Day(), names.months[local.Month()-1], local.Year())
}

// DayHours lists the hour marks "HH:00" from startHour through endHour-1.
func DayHours(startHour, endHour int) []string {
	var hours []string
	for h := startHour; h < endHour; h++ {
		hours = append(hours, fmt.Sprintf("%02d:00", h))
	}
	return hours
}

// TimeSlots lists a grid of stepMinutes from startHour, stopping at the last
// hour mark (endHour-1):00.
func TimeSlots(startHour, endHour, stepMinutes int) []string {
	if stepMinutes <= 0 {
		stepMinutes = 15
	}
	var slots []string
	last := endHour - 1
	for h := startHour; h <= last; h++ {
		for m := 0; m < 60; m += stepMinutes {
			if h == last && m > 0 {
				break
			}
			slots = append(slots, fmt.Sprintf("%02d:%02d", h, m))
		}
	}
	return slots
}
