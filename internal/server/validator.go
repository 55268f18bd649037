package server

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"example.com/fincap/backend/internal/ledger"
)

type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator создает валидатор с тегами леджера:
// ledger_date (YYYY-MM-DD, допускается хвост времени) и amount (положительная сумма числом или строкой).
func NewValidator() *CustomValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	mustRegister(v, "ledger_date", validLedgerDate)
	mustRegister(v, "amount", validAmount)
	return &CustomValidator{validator: v}
}

// Validate запускает проверку структуры по тегам.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}

// jsonFieldName подставляет json-имя поля в ошибки валидации.
func jsonFieldName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return field.Name
	}
	return name
}

func validLedgerDate(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	_, err := ledger.ParseDate(fl.Field().String())
	return err == nil
}

func validAmount(fl validator.FieldLevel) bool {
	if !fl.Field().IsValid() || !fl.Field().CanInterface() {
		return false
	}
	_, err := ledger.ParseAmount(fl.Field().Interface())
	return err == nil
}
