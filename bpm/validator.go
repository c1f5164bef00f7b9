package bpm

import "github.com/go-playground/validator/v10"

// validatorUtil 参数校验器,各服务入口统一使用
var validatorUtil = validator.New()
