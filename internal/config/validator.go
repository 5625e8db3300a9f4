package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/aleister1102/webwatch/internal/errs"
)

// selectorRequired lists the extractor types that cannot run without a
// selector. The page-scoped types (url, title, evaluate, json,
// jsonFromScript, screenshot) operate without one.
var selectorRequired = map[string]bool{
	"text":      true,
	"innerText": true,
	"attribute": true,
	"value":     true,
	"options":   true,
	"html":      true,
	"outerHtml": true,
	"count":     true,
	"exists":    true,
	"xpath":     true,
}

// ValidateWatchConfig rejects configs that cannot be scheduled: missing
// url, empty extractors, incomplete extractor declarations, or both
// schedule and interval declared at once.
func ValidateWatchConfig(w *WatchConfig) error {
	validate := validator.New()

	_ = validate.RegisterValidation("cronfield", func(fl validator.FieldLevel) bool {
		spec := fl.Field().String()
		return spec == "" || len(strings.Fields(spec)) == 5
	})

	view := struct {
		URL      string `validate:"required,url"`
		Schedule string `validate:"cronfield"`
	}{
		URL:      w.URL,
		Schedule: w.Schedule,
	}

	if err := validate.Struct(view); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msgs = append(msgs, fmt.Sprintf("field '%s' failed rule '%s'", e.Field(), e.Tag()))
			}
			return errs.Wrapf(errs.ErrInvalidConfiguration, "watch '%s': %s", w.Name, strings.Join(msgs, "; "))
		}
		return errs.Wrap(err, "watch validation")
	}

	if w.IntervalMs > 0 && w.Schedule != "" {
		return errs.Wrapf(errs.ErrInvalidConfiguration,
			"watch '%s': interval and schedule are mutually exclusive", w.Name)
	}

	if len(w.Extractors) == 0 {
		return errs.Wrapf(errs.ErrInvalidConfiguration, "watch '%s': extractors must be non-empty", w.Name)
	}

	for i := range w.Extractors {
		if err := validateExtractor(&w.Extractors[i], i); err != nil {
			return errs.Wrapf(err, "watch '%s'", w.Name)
		}
	}

	return nil
}

func validateExtractor(e *ExtractorConfig, index int) error {
	if e.Name == "" {
		return errs.NewValidationError("name", e.Name, fmt.Sprintf("extractor #%d requires a name", index))
	}
	if e.Type == "" {
		return errs.NewValidationError("type", e.Type, fmt.Sprintf("extractor '%s' requires a type", e.Name))
	}
	if selectorRequired[e.Type] && e.Selector == "" {
		return errs.NewValidationError("selector", e.Selector,
			fmt.Sprintf("extractor '%s' of type '%s' requires a selector", e.Name, e.Type))
	}
	if e.Type == "attribute" && e.Attribute == "" {
		return errs.NewValidationError("attribute", e.Attribute,
			fmt.Sprintf("extractor '%s' requires an attribute name", e.Name))
	}
	return nil
}
