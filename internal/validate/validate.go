// Package validate checks claim and evidence input against struct tag rules.
package validate

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// AllowedContentTypes lists the evidence artifact types accepted for upload.
var AllowedContentTypes = map[string]string{
	"image/bmp":       ".bmp",
	"image/gif":       ".gif",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
	"text/plain":      ".txt",
}

var allowedExtensions = map[string]struct{}{
	".bmp": {}, ".gif": {}, ".jpg": {}, ".jpeg": {}, ".png": {}, ".webp": {}, ".pdf": {}, ".txt": {},
}

var sv *validator.Validate

var fieldValidators = map[string]func(validator.FieldLevel) bool{
	"notblank":    validators.NotBlank,
	"contentType": validateContentType,
	"filename":    validateFilename,
}

func init() {
	sv = validator.New()
	sv.RegisterTagNameFunc(jsonName)
	for tag, fn := range fieldValidators {
		if err := sv.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Errorf("register %s validator: %w", tag, err))
		}
	}
}

// Violation is a single failed rule. Field is the JSON name of the offending field.
type Violation struct {
	Field string
	Rule  string
	Param string
}

// Message renders the violation as a short human-readable reason.
func (v Violation) Message() string {
	switch v.Rule {
	case "required":
		return "is required"
	case "notblank":
		return "must not be blank"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + v.Param
	case "max":
		return "must be at most " + v.Param
	case "contentType":
		return "is not an accepted content type"
	case "filename":
		return "must be a plain file name with an accepted extension"
	case "oneof":
		return "must be one of " + v.Param
	case "excludesall":
		return "must not contain any of " + v.Param
	}
	return "is invalid (" + v.Rule + ")"
}

// Struct validates s and returns its violations in field declaration order.
// A nil result means s is valid.
func Struct(s any) []Violation {
	err := sv.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []Violation{{Rule: "struct", Param: err.Error()}}
	}
	out := make([]Violation, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, Violation{Field: fe.Field(), Rule: fe.Tag(), Param: fe.Param()})
	}
	return out
}

// ContentType normalizes a Content-Type header value for comparison.
func ContentType(ct string) string {
	ct, _, _ = strings.Cut(ct, ";")
	return strings.TrimSpace(strings.ToLower(ct))
}

func validateContentType(field validator.FieldLevel) bool {
	_, ok := AllowedContentTypes[ContentType(field.Field().String())]
	return ok
}

func validateFilename(field validator.FieldLevel) bool {
	fn := field.Field().String()
	if fn == "" || strings.ContainsAny(fn, `/\`) || strings.HasPrefix(fn, ".") {
		return false
	}
	_, ok := allowedExtensions[strings.ToLower(filepath.Ext(fn))]
	return ok
}

func jsonName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}
