package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/yourorg/backtest-service/internal/model"
	"github.com/yourorg/backtest-service/internal/strategy"
)

// ConfigValidator checks a BacktestConfig before any execution is created
type ConfigValidator struct {
	validate   *validator.Validate
	strategies *strategy.Registry
}

// NewConfigValidator creates a validator that also resolves strategies against registry
func NewConfigValidator(registry *strategy.Registry) *ConfigValidator {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return &ConfigValidator{validate: v, strategies: registry}
}

// Validate returns a *model.ConfigValidationError listing every rejected field
func (cv *ConfigValidator) Validate(cfg model.BacktestConfig) error {
	verr := &model.ConfigValidationError{}

	if err := cv.validate.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("validating config: %w", err)
		}
		for _, fe := range fieldErrs {
			verr.Add(fieldPath(fe.Namespace()), describe(fe))
		}
	}

	cfg = cfg.WithDefaults()
	if !cfg.Sizing.Value.IsPositive() {
		verr.Add("sizing.value", "must be greater than 0")
	}
	if cfg.Sizing.Type == model.SizingPercentEquity && cfg.Sizing.Value.GreaterThan(decimal.NewFromInt(1)) {
		verr.Add("sizing.value", "percent_equity is a fraction of equity and must not exceed 1")
	}
	if cfg.Slippage.Type == model.SlippageVolumeProportional && !cfg.Slippage.Coefficient.IsPositive() {
		verr.Add("slippage.coefficient", "required for volume_proportional slippage")
	}
	if cfg.Commission.Type == model.CommissionPercentage && !cfg.Commission.Rate.IsPositive() {
		verr.Add("commission.rate", "required for percentage commission")
	}

	if cfg.Strategy.Name != "" && cv.strategies != nil {
		if _, err := cv.strategies.Build(cfg.Strategy); err != nil {
			verr.Add("strategy", err.Error())
		}
	}
	return verr.OrNil()
}

// fieldPath drops the root struct name from a validator namespace
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must have at least " + fe.Param() + " entries"
	case "unique":
		return "must not contain duplicates"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lt":
		return "must be less than " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "gtfield":
		return "must be after " + strings.ToLower(fe.Param())
	}
	return "failed " + fe.Tag() + " check"
}
