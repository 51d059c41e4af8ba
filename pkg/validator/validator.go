package validator

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/medicore/opd-api/pkg/errors"
)

// Validator validates request payloads using struct tags.
type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	return &Validator{v: v}
}

// Validate returns a VALIDATION_ERROR describing every failed field, so
// callers get one round-trip instead of fixing fields one at a time.
func (val *Validator) Validate(obj interface{}) error {
	err := val.v.Struct(obj)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.Validation("invalid payload", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return errors.Validation(strings.Join(msgs, "; "), err)
}

// Var validates a single value against the given rules.
func (val *Validator) Var(value interface{}, rules string) error {
	if err := val.v.Var(value, rules); err != nil {
		return errors.Validation(fmt.Sprintf("value failed %s", rules), err)
	}
	return nil
}
