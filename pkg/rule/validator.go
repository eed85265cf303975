// Package rule 封装 go-playground/validator，配置结构体使用 rule 标签声明校验规则.
//
// 除内置规则外额外注册了两个规则:
//
//	bytesize  可读的字节数，例如 "10GB"、"512MiB" 或纯数字
//	ocrlang   OCR 语言代码，可用 "+" 连接多个，例如 "eng+deu"
package rule

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	units "github.com/docker/go-units"
	"github.com/go-playground/validator/v10"
)

// TagName 配置结构体上使用的校验标签.
const TagName = "rule"

var (
	inst *validator.Validate
	once sync.Once

	langPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{2,}(\+[a-z][a-z0-9_]{2,})*$`)
)

func engine() *validator.Validate {
	once.Do(func() {
		inst = validator.New(validator.WithRequiredStructEnabled())
		inst.SetTagName(TagName)
		inst.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
			if name == "" || name == "-" {
				return f.Name
			}

			return name
		})

		_ = inst.RegisterValidation("bytesize", validateByteSize)
		_ = inst.RegisterValidation("ocrlang", validateOCRLanguage)
	})

	return inst
}

func validateByteSize(fl validator.FieldLevel) bool {
	n, err := units.FromHumanSize(strings.TrimSpace(fl.Field().String()))

	return err == nil && n >= 0
}

func validateOCRLanguage(fl validator.FieldLevel) bool {
	return langPattern.MatchString(fl.Field().String())
}

// ValidateStruct 校验结构体，失败时把每个字段的错误合并为一条可读信息.
func ValidateStruct(s any) error {
	err := engine().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describe(fe))
	}

	return &Error{Fields: fieldErrs, msg: strings.Join(msgs, "; ")}
}

// ValidateVar 按规则校验单个值，例如 ValidateVar("10GB", "bytesize").
func ValidateVar(field any, tag string) error {
	return engine().Var(field, tag)
}

// Error 结构体校验失败.
type Error struct {
	Fields validator.ValidationErrors
	msg    string
}

func (e *Error) Error() string { return e.msg }

// Unwrap 返回底层的 validator.ValidationErrors.
func (e *Error) Unwrap() error { return e.Fields }

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fmt.Sprint(fe.Value()))
	case "bytesize":
		return fmt.Sprintf("%s is not a valid size: %q", field, fmt.Sprint(fe.Value()))
	case "ocrlang":
		return fmt.Sprintf("%s is not a valid OCR language: %q", field, fmt.Sprint(fe.Value()))
	case "nefield":
		return fmt.Sprintf("%s must differ from %s", field, fe.Param())
	default:
		if fe.Param() != "" {
			return fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param())
		}

		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
