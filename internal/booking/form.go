package booking

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"kinderbook/internal/domain"
	"kinderbook/internal/model"
)

// DefaultPhonePattern accepts the usual Cypriot and international notations,
// e.g. "+357 991 23456" or "(357) 991-2345".
const DefaultPhonePattern = `^[+]?[(]?[0-9]{3}[)]?[-\s.]?[0-9]{3}[-\s.]?[0-9]{4,6}$`

var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// Form field names used in validation errors.
const (
	FieldParentName         = "parentName"
	FieldParentEmail        = "parentEmail"
	FieldParentPhone        = "parentPhone"
	FieldChildName          = "childName"
	FieldChildAge           = "childAge"
	FieldRequestedStartDate = "requestedStartDate"
)

// Form is the parent and child details submitted in the last step.
type Form struct {
	ParentName         string `json:"parentName"`
	ParentEmail        string `json:"parentEmail"`
	ParentPhone        string `json:"parentPhone"`
	ChildName          string `json:"childName"`
	ChildAge           int    `json:"childAge"`
	RequestedStartDate string `json:"requestedStartDate"`
	Note               string `json:"note,omitempty"`
}

// Normalize trims surrounding whitespace from the text fields.
func (f Form) Normalize() Form {
	f.ParentName = strings.TrimSpace(f.ParentName)
	f.ParentEmail = strings.TrimSpace(f.ParentEmail)
	f.ParentPhone = strings.TrimSpace(f.ParentPhone)
	f.ChildName = strings.TrimSpace(f.ChildName)
	f.RequestedStartDate = strings.TrimSpace(f.RequestedStartDate)
	f.Note = strings.TrimSpace(f.Note)
	return f
}

// Validator checks submitted forms.
type Validator struct {
	phone *regexp.Regexp
}

// NewValidator compiles phonePattern; an empty pattern uses DefaultPhonePattern.
func NewValidator(phonePattern string) (*Validator, error) {
	if phonePattern == "" {
		phonePattern = DefaultPhonePattern
	}
	re, err := regexp.Compile(phonePattern)
	if err != nil {
		return nil, fmt.Errorf("phone pattern: %w", err)
	}
	return &Validator{phone: re}, nil
}

// Validate returns every field failure of f for the given venue, or nil.
// Surrounding whitespace is ignored.
func (v *Validator) Validate(f Form, venue *model.Venue) *domain.ValidationError {
	f = f.Normalize()
	verr := &domain.ValidationError{}

	switch {
	case f.ParentName == "":
		verr.Add(FieldParentName, "is required")
	case utf8.RuneCountInString(f.ParentName) < 2:
		verr.Add(FieldParentName, "must be at least 2 characters")
	}

	switch {
	case f.ParentEmail == "":
		verr.Add(FieldParentEmail, "is required")
	case !emailPattern.MatchString(f.ParentEmail):
		verr.Add(FieldParentEmail, "must be a valid email address")
	}

	switch {
	case f.ParentPhone == "":
		verr.Add(FieldParentPhone, "is required")
	case !v.phone.MatchString(f.ParentPhone):
		verr.Add(FieldParentPhone, "must be a valid phone number")
	}

	if f.ChildName == "" {
		verr.Add(FieldChildName, "is required")
	}

	if !venue.AcceptsAge(f.ChildAge) {
		if venue.MaxChildAge == 0 {
			verr.Add(FieldChildAge, fmt.Sprintf("must be at least %d", venue.MinChildAge))
		} else {
			verr.Add(FieldChildAge, fmt.Sprintf("must be between %d and %d", venue.MinChildAge, venue.MaxChildAge))
		}
	}

	if f.RequestedStartDate == "" {
		verr.Add(FieldRequestedStartDate, "is required")
	} else if _, err := model.ParseDate(f.RequestedStartDate); err != nil {
		verr.Add(FieldRequestedStartDate, "must be a date in YYYY-MM-DD format")
	}

	if verr.Empty() {
		return nil
	}
	return verr
}
