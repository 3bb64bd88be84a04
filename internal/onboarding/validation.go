package onboarding

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/atinyakov/GophBank/internal/models"
	"github.com/go-playground/validator/v10"
)

// DOBLayout is the date format expected for the date of birth.
const DOBLayout = "2006-01-02"

var (
	aadhaarPattern = regexp.MustCompile(`^[0-9]{12}$`)
	panPattern     = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
	mobilePattern  = regexp.MustCompile(`^[0-9]{10}$`)
	otpPattern     = regexp.MustCompile(`^[0-9]{6}$`)
)

var fieldMessages = map[string]string{
	"required": "is required",
	"notblank": "is required",
	"email":    "must be a valid email address",
	"aadhaar":  "must be exactly 12 digits",
	"pan":      "must match AAAAA9999A",
	"mobile":   "must be exactly 10 digits",
	"dob":      "must be a past date in YYYY-MM-DD format",
}

// Validator checks applicant input before anything is sent to the backend.
type Validator struct {
	v *validator.Validate
}

// NewValidator returns a Validator whose date checks use now as the current time.
func NewValidator(now func() time.Time) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation("aadhaar", matches(aadhaarPattern))
	_ = v.RegisterValidation("pan", matches(panPattern))
	_ = v.RegisterValidation("mobile", matches(mobilePattern))
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("dob", func(fl validator.FieldLevel) bool {
		d, err := time.Parse(DOBLayout, fl.Field().String())
		return err == nil && d.Before(now())
	})

	return &Validator{v: v}
}

func matches(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}

// Details validates every field of d and reports all failures at once.
func (val *Validator) Details(d models.PersonalDetails) error {
	return val.fieldErrors(val.v.Struct(d))
}

// Email validates an address used to request an OTP.
func (val *Validator) Email(email string) error {
	if strings.TrimSpace(email) == "" {
		return newValidationError("email", fieldMessages["required"])
	}
	if err := val.v.Var(email, "email"); err != nil {
		return newValidationError("email", fieldMessages["email"])
	}
	return nil
}

// OTP validates the shape of a one-time code: exactly six digits.
func (val *Validator) OTP(code string) error {
	if !otpPattern.MatchString(code) {
		return newValidationError("otp", "must be exactly 6 digits")
	}
	return nil
}

func (val *Validator) fieldErrors(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		msg, ok := fieldMessages[fe.Tag()]
		if !ok {
			msg = "is invalid"
		}
		out.Fields[fe.Field()] = msg
	}
	return out
}
