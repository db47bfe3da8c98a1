package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// decodeAndValidate reads a JSON body into dest and runs its validation rules.
// On failure the error response is already written and false is returned.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v *validator.Validate, dest any) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return false
	}

	if err := v.Struct(dest); err != nil {
		respondWithError(w, http.StatusBadRequest, "VALIDATION_FAILED", formatValidationError(err))
		return false
	}

	return true
}

func formatValidationError(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "invalid request payload"
	}

	messages := make([]string, 0, len(ve))
	for _, fe := range ve {
		field := strings.ReplaceAll(fe.Field(), "_", " ")
		switch fe.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", field))
		case "email":
			messages = append(messages, fmt.Sprintf("%s must be a valid email address", field))
		case "min":
			messages = append(messages, fmt.Sprintf("%s must be at least %s characters", field, fe.Param()))
		case "max":
			messages = append(messages, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
		case "len":
			messages = append(messages, fmt.Sprintf("%s must be exactly %s characters", field, fe.Param()))
		case "numeric":
			messages = append(messages, fmt.Sprintf("%s must contain only digits", field))
		case "e164":
			messages = append(messages, fmt.Sprintf("%s must be an E.164 phone number", field))
		default:
			messages = append(messages, fmt.Sprintf("%s failed validation: %s", field, fe.Tag()))
		}
	}
	return strings.Join(messages, "; ")
}
