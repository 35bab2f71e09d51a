package dto

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/osamaloay/TicketsBooking-sub000/internal/domain"
)

// RegisterValidators adds the custom binding tags to gin's validator
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	return v.RegisterValidation("event_status", validateEventStatus)
}

func validateEventStatus(fl validator.FieldLevel) bool {
	return domain.EventStatus(fl.Field().String()).IsValid()
}
