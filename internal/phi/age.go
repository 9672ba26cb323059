package phi

import (
	"strconv"
	"time"
)

// NinetyPlusDisplay is the bucketed display value for ages above 89,
// required by the Safe Harbor de-identification rule.
const NinetyPlusDisplay = "90+"

// Age is the result of the Safe Harbor age derivation: unknown, an exact
// age 0-89, or the 90+ bucket.
type Age struct {
	known      bool
	ninetyPlus bool
	years      int
}

func UnknownAge() Age          { return Age{} }
func ExactAge(years int) Age   { return Age{known: true, years: years} }
func NinetyPlusAge() Age       { return Age{known: true, ninetyPlus: true} }
func (a Age) Known() bool      { return a.known }
func (a Age) NinetyPlus() bool { return a.ninetyPlus }

// Years returns the exact age and true, or 0 and false for unknown or
// bucketed ages.
func (a Age) Years() (int, bool) {
	if !a.known || a.ninetyPlus {
		return 0, false
	}
	return a.years, true
}

func (a Age) String() string {
	switch {
	case !a.known:
		return "unknown"
	case a.ninetyPlus:
		return NinetyPlusDisplay
	default:
		return strconv.Itoa(a.years)
	}
}

// ComputeAge derives a display age from a date-of-birth field value as of
// the given instant. The age increments exactly on the anniversary; a
// February 29 birthdate rolls to March 1 in non-leap years. A missing or
// unparsable date of birth yields the unknown result rather than an error,
// so a bad derived field never blocks access to the rest of the resource.
func ComputeAge(dateOfBirth string, asOf time.Time) Age {
	if dateOfBirth == "" {
		return UnknownAge()
	}

	dob, err := parseDOB(dateOfBirth)
	if err != nil {
		return UnknownAge()
	}
	if dob.After(asOf) {
		return UnknownAge()
	}

	years := asOf.Year() - dob.Year()
	// time.Date normalizes Feb 29 to Mar 1 in non-leap years, which gives
	// Feb 29 birthdates their anniversary on Mar 1.
	anniversary := time.Date(asOf.Year(), dob.Month(), dob.Day(), 0, 0, 0, 0, time.UTC)
	today := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	if today.Before(anniversary) {
		years--
	}

	if years > 89 {
		return NinetyPlusAge()
	}
	if years < 0 {
		return UnknownAge()
	}
	return ExactAge(years)
}

func parseDOB(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
