package records

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/yourorg/evidencelog/internal/faults"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks struct tags on an input and returns a faults validation
// error listing every failed rule.
func Validate(input any) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return faults.Validation("invalid input", faults.ValidationItem{Code: "REC-REQ-000", Path: "body", Message: err.Error()})
	}
	items := make([]faults.ValidationItem, 0, len(verrs))
	for _, fe := range verrs {
		items = append(items, faults.ValidationItem{
			Code:    "REC-" + strings.ToUpper(fe.Tag()),
			Path:    fieldPath(fe.Namespace()),
			Message: ruleMessage(fe),
		})
	}
	return faults.Validation("request validation failed", items...)
}

func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "datetime":
		return fe.Field() + " must be a YYYY-MM-DD date"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "gte", "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "lte", "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

func parseRequiredDate(path, value string) (Date, error) {
	d, err := ParseDate(value)
	if err != nil {
		return Date{}, faults.Validation("malformed date", faults.ValidationItem{Code: "REC-DATE-001", Path: path, Message: "invalid date: " + value})
	}
	return d, nil
}

func parseOptionalDate(path string, value *string) (*Date, error) {
	if value == nil || *value == "" {
		return nil, nil
	}
	d, err := parseRequiredDate(path, *value)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
