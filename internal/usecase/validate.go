package usecase

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/totegamma/portfolio/internal/domain"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// toValidationError reports the first failed field of a validator error
// under prefix, named by its JSON path.
func toValidationError(err error, prefix string) error {
	var invalid validator.ValidationErrors
	if !errors.As(err, &invalid) || len(invalid) == 0 {
		return domain.ValidationError{Field: strings.TrimSuffix(prefix, "."), Message: "is invalid"}
	}

	fe := invalid[0]
	field := fe.Namespace()
	// drop the struct name
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	return domain.ValidationError{Field: prefix + field, Message: describe(fe)}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must have at most %s items", fe.Param())
		}
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "http_url", "url":
		return "must be an absolute http(s) URL"
	}
	return fmt.Sprintf("failed %s check", fe.Tag())
}

func (uc *CaseStudyUsecase) validateSections(ss domain.Sections) error {
	seen := make(map[domain.SectionKind]bool, len(ss))
	for _, s := range ss {
		if s.Body == nil {
			return domain.ValidationError{Field: "sections", Message: "contains an empty section"}
		}
		kind := s.Kind()
		prefix := "sections." + string(kind) + "."
		if seen[kind] {
			return domain.ValidationError{Field: strings.TrimSuffix(prefix, "."), Message: "duplicate section"}
		}
		seen[kind] = true
		if err := uc.validate.Struct(s.Body); err != nil {
			return toValidationError(err, prefix)
		}
	}
	return nil
}

func (uc *CaseStudyUsecase) validateInput(input *domain.CaseStudyInput) error {
	input.Title = strings.TrimSpace(input.Title)
	if input.Title == "" {
		return domain.ValidationError{Field: "title", Message: "is required"}
	}
	if input.Status == "" {
		input.Status = domain.StatusDraft
	}
	input.Tags = domain.NormalizeTags(input.Tags)

	if err := uc.validate.Struct(input); err != nil {
		return toValidationError(err, "")
	}
	return uc.validateSections(input.Sections)
}

func (uc *CaseStudyUsecase) validatePatch(patch *domain.CaseStudyPatch) error {
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return domain.ValidationError{Field: "title", Message: "must not be empty"}
		}
		patch.Title = &title
	}
	if patch.Status != nil && *patch.Status == "" {
		return domain.ValidationError{Field: "status", Message: "must not be empty"}
	}
	if err := uc.validate.Struct(patch); err != nil {
		return toValidationError(err, "")
	}
	if patch.Sections != nil {
		return uc.validateSections(*patch.Sections)
	}
	return nil
}
