// Package validator - общий экземпляр go-playground/validator с тегами сервиса.
package validator

import (
	"net/url"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate *validator.Validate
	once     sync.Once
)

// Дополнительные теги:
//
//	httpurl  - абсолютный URL со схемой http или https
//	nonblank - строка, непустая после обрезки пробелов
func getInstance() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(jsonName)
		_ = validate.RegisterValidation("httpurl", isHTTPURL)
		_ = validate.RegisterValidation("nonblank", isNonBlank)
	})
	return validate
}

// jsonName подставляет в ошибки имя поля из json-тега.
func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

func isHTTPURL(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

func isNonBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// ValidateStruct выполняет валидацию по тегам структуры.
func ValidateStruct(s any) error {
	return getInstance().Struct(s)
}

// ValidateVar проверяет одиночное значение по тегу, например "required,httpurl".
func ValidateVar(v any, tag string) error {
	return getInstance().Var(v, tag)
}
