package auth

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// RegisterDeviceRequest is the payload of a register_device event.
// Capabilities are free-form strings advertised by the client.
type RegisterDeviceRequest struct {
	Type         string   `json:"type" validate:"required,oneof=desktop mobile wearable web"`
	Name         string   `json:"name" validate:"required,min=1,max=128"`
	Capabilities []string `json:"capabilities" validate:"omitempty,dive,min=1,max=64"`
	PairingCode  string   `json:"pairingCode" validate:"omitempty,min=6,max=64"`
}

// ValidateRegisterDevice rejects malformed registration payloads before
// they reach the device registry.
func ValidateRegisterDevice(req RegisterDeviceRequest) error {
	return validate.Struct(req)
}
