package broker

import (
	"errors"
	"reflect"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	orderValidator     *validator.Validate
	orderValidatorOnce sync.Once
)

func getOrderValidator() *validator.Validate {
	orderValidatorOnce.Do(func() {
		v := validator.New()
		v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
			if d, ok := field.Interface().(decimal.Decimal); ok {
				return d.InexactFloat64()
			}
			return nil
		}, decimal.Decimal{})
		orderValidator = v
	})
	return orderValidator
}

// ValidateOrder checks an order before it is sent. The first offending
// field is reported as a BadRequest error.
func ValidateOrder(req OrderRequest) error {
	if err := getOrderValidator().Struct(req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			fe := validationErrors[0]
			return NewBadRequestError(fe.Field(), describeFieldError(fe))
		}
		return NewBadRequestError("Order", err.Error())
	}

	if !req.OrderType.IsMarket() && req.LimitPrice == nil {
		return NewBadRequestError("LimitPrice", "limit orders require a price")
	}
	return nil
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "failed on " + fe.Tag()
	}
}
