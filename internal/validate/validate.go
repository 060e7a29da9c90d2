// Package validate holds pure input checks for incoming payloads. Validators
// return (ok, message) pairs and the visit validator collects every failure
// instead of stopping at the first one, so the client can show a complete
// list of problems.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	VisitTypeGroup      = "group"
	VisitTypeIndividual = "individual"

	OfferAccepted = "accepted"
	OfferDeclined = "declined"
)

var (
	nameCharset = regexp.MustCompile(`^[a-zA-ZåäöÅÄÖ0-9\s\-\_]+$`)
	unsafeChars = regexp.MustCompile(`[<>&'"\\]`)
)

// Sanitize strips characters with markup or quoting significance, truncates
// to max runes and trims surrounding whitespace.
func Sanitize(value string, max int) string {
	value = unsafeChars.ReplaceAllString(value, "")
	if runes := []rune(value); len(runes) > max {
		value = string(runes[:max])
	}
	return strings.TrimSpace(value)
}

func HomeName(name string) (bool, string) {
	return checkName(name, 50, "Namn krävs", "Namnet är för långt (max 50 tecken)", "Namnet innehåller ogiltiga tecken")
}

func DepartmentName(name string) (bool, string) {
	return checkName(name, 80, "Avdelningsnamn krävs", "Avdelningsnamnet är för långt (max 80 tecken)", "Avdelningsnamnet innehåller ogiltiga tecken")
}

func ActivityName(name string) (bool, string) {
	return checkName(name, 100, "Aktivitetsnamn måste anges", "Aktivitetsnamn får inte vara längre än 100 tecken", "Aktivitetsnamn innehåller ogiltiga tecken")
}

func CompanionName(name string) (bool, string) {
	return checkName(name, 50, "Namn krävs", "Namnet är för långt (max 50 tecken)", "Namnet innehåller ogiltiga tecken")
}

func checkName(name string, max int, missing, tooLong, badChars string) (bool, string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, missing
	}
	if len([]rune(name)) > max {
		return false, tooLong
	}
	if !nameCharset.MatchString(name) {
		return false, badChars
	}
	return true, ""
}

// Date accepts YYYY-MM-DD only.
func Date(s string) (bool, string) {
	if s == "" {
		return false, "Datum saknas"
	}
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return false, "Ogiltigt datumformat (använd YYYY-MM-DD)"
	}
	return true, ""
}

// SatisfactionInput is one respondent's rating in a visit payload.
type SatisfactionInput struct {
	Gender string
	Rating int
}

// VisitInput carries the normalized fields of a visit payload that the
// aggregate validator inspects.
type VisitInput struct {
	DepartmentID    string
	Date            string
	VisitType       string
	OfferStatus     string
	Men             int
	Women           int
	DurationMinutes *int
	Satisfaction    []SatisfactionInput
}

// VisitContext supplies the surrounding facts a visit payload is checked
// against. DepartmentActive is nil when the referenced home no longer exists,
// which happens for legacy records whose home was removed; department checks
// then fall back to the grandfathering rule alone. ExistingDepartmentID is nil
// on create, where there is no stored record to grandfather against.
type VisitContext struct {
	DepartmentActive     func(id string) bool
	ExistingDepartmentID *string
}

// Visit runs every rule against the payload and returns all failures.
func Visit(in VisitInput, vctx VisitContext) []string {
	var errs []string

	if ok, msg := Date(in.Date); !ok {
		errs = append(errs, msg)
	}
	if in.VisitType != VisitTypeGroup && in.VisitType != VisitTypeIndividual {
		errs = append(errs, "Ogiltig typ av utevistelse")
	}
	if in.OfferStatus != OfferAccepted && in.OfferStatus != OfferDeclined {
		errs = append(errs, "Ogiltig status för erbjudande")
	}

	declined := in.OfferStatus == OfferDeclined
	if in.Men < 0 || in.Men > 1000 {
		errs = append(errs, "Ogiltigt antal för män (måste vara 0-1000)")
	}
	if in.Women < 0 || in.Women > 1000 {
		errs = append(errs, "Ogiltigt antal för kvinnor (måste vara 0-1000)")
	}
	total := in.Men + in.Women
	if total == 0 && !declined {
		errs = append(errs, "Minst en deltagare krävs")
	}
	if in.VisitType == VisitTypeIndividual && !declined && total != 1 {
		errs = append(errs, "Individuell utevistelse måste ha exakt en deltagare")
	}

	if in.OfferStatus == OfferAccepted {
		if in.DurationMinutes == nil {
			errs = append(errs, "Längd saknas")
		} else if *in.DurationMinutes < 1 || *in.DurationMinutes > 720 {
			errs = append(errs, "Ogiltig längd (måste vara 1-720 minuter)")
		}
	}

	if len(in.Satisfaction) > total {
		errs = append(errs, fmt.Sprintf("För många nöjdhetssvar (max %d)", total))
	}
	for _, entry := range in.Satisfaction {
		if entry.Gender != "men" && entry.Gender != "women" {
			errs = append(errs, "Ogiltigt kön i nöjdhetssvar")
		}
		if entry.Rating < 1 || entry.Rating > 6 {
			errs = append(errs, "Ogiltigt betyg (måste vara 1-6)")
		}
	}

	if msg := checkDepartment(in.DepartmentID, vctx); msg != "" {
		errs = append(errs, msg)
	}
	return errs
}

// checkDepartment accepts the department when it is an active department of
// the home, or when it matches the id already stored on the record being
// edited. The second arm keeps edits of old records working after their
// department was renamed away or removed.
func checkDepartment(id string, vctx VisitContext) string {
	if vctx.ExistingDepartmentID != nil && id == *vctx.ExistingDepartmentID {
		return ""
	}
	if id == "" {
		return "Avdelning saknas"
	}
	if vctx.DepartmentActive != nil && vctx.DepartmentActive(id) {
		return ""
	}
	return "Ogiltig avdelning"
}
