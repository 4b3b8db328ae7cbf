package config

import (
	"fmt"
	"strings"

	"github.com/pattyshack/argspec/logging"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type MultiValidationError struct {
	Errors []ValidationError
}

func (e *MultiValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}

	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var builder strings.Builder
	builder.WriteString(
		fmt.Sprintf("validation failed with %d errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		builder.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return builder.String()
}

func (cfg *Config) Validate() error {
	var errors []ValidationError

	_, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		errors = append(errors, ValidationError{
			Field:   "log.level",
			Message: err.Error(),
		})
	}

	if cfg.MaxChainDepth <= 0 {
		errors = append(errors, ValidationError{
			Field:   "max_chain_depth",
			Message: "must be positive",
		})
	}

	for idx, target := range cfg.Targets {
		field := fmt.Sprintf("targets[%d]", idx)

		if target.Path == "" {
			errors = append(errors, ValidationError{
				Field:   field + ".path",
				Message: "path is required",
			})
		}

		if target.Pid < 0 {
			errors = append(errors, ValidationError{
				Field:   field + ".pid",
				Message: "must not be negative",
			})
		}

		if target.Pid > 0 && target.LoadOffset != 0 {
			errors = append(errors, ValidationError{
				Field:   field,
				Message: "load_offset and pid are mutually exclusive",
			})
		}

		for _, function := range target.Functions {
			if function == "" {
				errors = append(errors, ValidationError{
					Field:   field + ".functions",
					Message: "function names must not be empty",
				})
				break
			}
		}
	}

	if len(errors) > 0 {
		return &MultiValidationError{Errors: errors}
	}

	return nil
}
