package validator

import (
	"strings"
	"unicode"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// MaxFileNameLength 文件名最大字节数
const MaxFileNameLength = 255

// RegisterBindings 向 gin 的默认校验引擎注册自定义规则，启动时调用一次
func RegisterBindings() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	return Register(v)
}

// Register 注册自定义规则到给定的 validator 实例
func Register(v *validator.Validate) error {
	return v.RegisterValidation("filename", validateFileName)
}

// validateFileName 文件名：非空、长度受限、不含路径分隔符和控制字符
func validateFileName(fl validator.FieldLevel) bool {
	return IsValidFileName(fl.Field().String())
}

// IsValidFileName 判断是否是可接受的用户文件名
func IsValidFileName(name string) bool {
	if strings.TrimSpace(name) == "" || len(name) > MaxFileNameLength {
		return false
	}
	if name == "." || name == ".." {
		return false
	}
	for _, r := range name {
		if r == '/' || r == '\\' || unicode.IsControl(r) {
			return false
		}
	}
	return true
}
