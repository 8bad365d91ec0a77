package types

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Validate checks ExecutionRequest's struct-tag bounds (required fields,
// length limits, range limits). It does not check for NUL bytes or
// language membership — those live outside the tag system and are checked
// separately by the orchestrator.
func (r ExecutionRequest) Validate() error {
	return getValidator().Struct(r)
}
