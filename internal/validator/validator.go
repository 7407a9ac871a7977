package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	playground "github.com/go-playground/validator/v10"
)

var (
	ErrInvalidUsername = errors.New("username must be 3-30 letters, digits or underscores")
	ErrInvalidPassword = errors.New("password must be at least 8 characters")
	ErrInvalidSymbol   = errors.New("symbol must be 1-12 letters, digits, dots, dashes, carets or equals signs")
)

var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]{3,30}$`)
	symbolRegex   = regexp.MustCompile(`^[A-Za-z0-9.\-^=]{1,12}$`)
)

const minPasswordLen = 8

func ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

func ValidatePassword(password string) error {
	if len(password) < minPasswordLen {
		return ErrInvalidPassword
	}
	return nil
}

func ValidateSymbol(symbol string) error {
	if !symbolRegex.MatchString(strings.TrimSpace(symbol)) {
		return ErrInvalidSymbol
	}
	return nil
}

var (
	once     sync.Once
	validate *playground.Validate
)

func instance() *playground.Validate {
	once.Do(func() {
		validate = playground.New(playground.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
		register := func(tag string, check func(string) error) {
			_ = validate.RegisterValidation(tag, func(fl playground.FieldLevel) bool {
				return check(fl.Field().String()) == nil
			})
		}
		register("username", ValidateUsername)
		register("password", ValidatePassword)
		register("symbol", ValidateSymbol)
	})
	return validate
}

// Struct checks v against its `validate` tags and returns the first failure
// as a readable error.
func Struct(v any) error {
	err := instance().Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs playground.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	return describe(fieldErrs[0])
}

func describe(fe playground.FieldError) error {
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", fe.Field())
	case "username":
		return ErrInvalidUsername
	case "password":
		return ErrInvalidPassword
	case "symbol":
		return ErrInvalidSymbol
	case "eqfield":
		return fmt.Errorf("%s must match %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Errorf("%s must be one of: %s", fe.Field(), fe.Param())
	default:
		return fmt.Errorf("%s is invalid", fe.Field())
	}
}
