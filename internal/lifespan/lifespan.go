// Package lifespan turns a date of birth and a life expectancy into the
// figures shown by the weeks grid and embedded in daily reminders.
package lifespan

import (
	"math"
	"time"

	"github.com/quocanhngo/memento/internal/model"
)

// AverageYear is the mean Gregorian year length
const AverageYear = time.Duration(365.2425 * 24 * float64(time.Hour))

const week = 7 * 24 * time.Hour

var expectancyByGender = map[model.Gender]int{
	model.GenderMale:   80,
	model.GenderFemale: 85,
}

// ExpectancyYears returns the life expectancy that applies to prefs
func ExpectancyYears(prefs *model.Preferences) int {
	if prefs == nil {
		return model.DefaultLifeExpectancy
	}
	if prefs.Gender == model.GenderCustom {
		if prefs.CustomLifeExpectancyYears == 0 {
			return model.DefaultLifeExpectancy
		}
		return model.ClampLifeExpectancy(prefs.CustomLifeExpectancyYears)
	}
	if years, ok := expectancyByGender[prefs.Gender]; ok {
		return years
	}
	return expectancyByGender[model.GenderMale]
}

// RemainingPercent returns the share of the expected lifespan still ahead,
// rounded to one decimal and clamped to [0, 100]. ok is false when no usable
// date of birth is set. A birth date in the future yields 100.
func RemainingPercent(prefs *model.Preferences, now time.Time) (pct float64, ok bool) {
	born, ok := prefs.BirthDate()
	if !ok {
		return 0, false
	}

	expectancy := float64(ExpectancyYears(prefs))
	lived := float64(now.Sub(born)) / float64(AverageYear)
	remaining := (expectancy - lived) / expectancy * 100

	remaining = math.Max(0, math.Min(100, remaining))
	return math.Round(remaining*10) / 10, true
}

// Weeks is the grid geometry: total weeks in the expected lifespan and the
// number already lived
type Weeks struct {
	Total int
	Past  int
}

// WeeksOf counts whole weeks from birth to the expected end date and to today.
// Both dates are taken as UTC calendar days.
func WeeksOf(prefs *model.Preferences, now time.Time) (Weeks, bool) {
	born, ok := prefs.BirthDate()
	if !ok {
		return Weeks{}, false
	}

	end := born.AddDate(ExpectancyYears(prefs), 0, 0)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	w := Weeks{
		Total: int(end.Sub(born) / week),
		Past:  int(today.Sub(born) / week),
	}
	if w.Past < 0 {
		w.Past = 0
	}
	if w.Past > w.Total {
		w.Past = w.Total
	}
	return w, true
}
