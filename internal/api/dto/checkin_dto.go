package dto

import (
	"time"

	"github.com/shiftlyhq/backend/internal/api/domain"
)

type CheckInRequest struct {
	Lat        float64         `json:"lat"`
	Lng        float64         `json:"lng"`
	DeviceInfo domain.Metadata `json:"device_info"`
}

type CheckOutRequest struct {
	Lat        float64         `json:"lat"`
	Lng        float64         `json:"lng"`
	DeviceInfo domain.Metadata `json:"device_info"`
}

type CheckInDTO struct {
	ID            string          `json:"id"`
	ApplicationID string          `json:"application_id"`
	CheckedInAt   string          `json:"checked_in_at"`
	CheckInLat    float64         `json:"check_in_lat"`
	CheckInLng    float64         `json:"check_in_lng"`
	CheckedOutAt  string          `json:"checked_out_at,omitempty"`
	CheckOutLat   *float64        `json:"check_out_lat,omitempty"`
	CheckOutLng   *float64        `json:"check_out_lng,omitempty"`
	DeviceInfo    domain.Metadata `json:"device_info,omitempty"`
}

type CheckInResponse struct {
	CheckIn     CheckInDTO `json:"check_in"`
	TimeWarning string     `json:"time_warning,omitempty"`
}

type CheckOutResponse struct {
	CheckIn        CheckInDTO `json:"check_in"`
	WorkedHours    float64    `json:"worked_hours"`
	PaymentPending bool       `json:"payment_pending"`
}

// NewCheckInDTO converts a domain check-in to its API shape.
func NewCheckInDTO(checkIn *domain.CheckIn) CheckInDTO {
	dto := CheckInDTO{
		ID:            checkIn.ID,
		ApplicationID: checkIn.ApplicationID,
		CheckedInAt:   checkIn.CheckedInAt.Format(time.RFC3339),
		CheckInLat:    checkIn.CheckInLat,
		CheckInLng:    checkIn.CheckInLng,
		CheckOutLat:   checkIn.CheckOutLat,
		CheckOutLng:   checkIn.CheckOutLng,
		DeviceInfo:    checkIn.DeviceInfo,
	}
	if checkIn.CheckedOutAt != nil {
		dto.CheckedOutAt = checkIn.CheckedOutAt.Format(time.RFC3339)
	}
	return dto
}
