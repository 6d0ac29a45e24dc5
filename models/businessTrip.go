package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/books_ledger/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type BusinessTripExpenseCategory string

const (
	TripExpenseFlights           BusinessTripExpenseCategory = "FLIGHTS"
	TripExpenseAccommodation     BusinessTripExpenseCategory = "ACCOMMODATION"
	TripExpenseCarRental         BusinessTripExpenseCategory = "CAR_RENTAL"
	TripExpenseTravelSubsistence BusinessTripExpenseCategory = "TRAVEL_AND_SUBSISTENCE"
	TripExpenseOther             BusinessTripExpenseCategory = "OTHER"
)

// TripExpenseCategories is the order summary entries are emitted in.
var TripExpenseCategories = []BusinessTripExpenseCategory{
	TripExpenseFlights,
	TripExpenseAccommodation,
	TripExpenseCarRental,
	TripExpenseTravelSubsistence,
	TripExpenseOther,
}

type BusinessTrip struct {
	ID          string                 `gorm:"primaryKey;size:36" json:"id"`
	ChargeId    string                 `gorm:"size:36;uniqueIndex;not null" json:"charge_id"`
	Name        string                 `gorm:"size:255" json:"name"`
	Destination string                 `gorm:"size:2" json:"destination"`
	FromDate    time.Time              `json:"from_date"`
	ToDate      time.Time              `json:"to_date"`
	Attendees   []BusinessTripAttendee `gorm:"foreignKey:TripId" json:"attendees"`
	Expenses    []BusinessTripExpense  `gorm:"foreignKey:TripId" json:"expenses"`
}

type BusinessTripAttendee struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	TripId        string    `gorm:"size:36;index;not null" json:"trip_id"`
	BusinessId    string    `gorm:"size:36;not null" json:"business_id"`
	ArrivalDate   time.Time `json:"arrival_date"`
	DepartureDate time.Time `json:"departure_date"`
}

// Days counts both the arrival and the departure day.
func (a BusinessTripAttendee) Days() int {
	days := int(a.DepartureDate.Sub(a.ArrivalDate).Hours()/24) + 1
	if days < 0 {
		return 0
	}
	return days
}

type BusinessTripExpense struct {
	ID                 string                      `gorm:"primaryKey;size:36" json:"id"`
	TripId             string                      `gorm:"size:36;index;not null" json:"trip_id"`
	Category           BusinessTripExpenseCategory `gorm:"size:30;not null" json:"category"`
	AttendeeBusinessId *string                     `gorm:"size:36" json:"attendee_business_id"`
	Amount             decimal.Decimal             `gorm:"type:decimal(20,4);not null" json:"amount"`
	Currency           string                      `gorm:"size:8;not null" json:"currency"`
	Date               time.Time                   `json:"date"`
	Nights             int                         `gorm:"not null;default:0" json:"nights"`
	Description        string                      `gorm:"size:255" json:"description"`
}

type BusinessTripProvider struct {
	db *gorm.DB
}

func NewBusinessTripProvider(db *gorm.DB) *BusinessTripProvider {
	return &BusinessTripProvider{db: db}
}

func (p *BusinessTripProvider) GetBusinessTripByCharge(ctx context.Context, chargeId string) (*BusinessTrip, error) {
	var trip BusinessTrip
	err := p.db.WithContext(ctx).
		Preload("Attendees", func(db *gorm.DB) *gorm.DB { return db.Order("business_id") }).
		Preload("Expenses", func(db *gorm.DB) *gorm.DB { return db.Order("date, id") }).
		Where("charge_id = ?", chargeId).
		First(&trip).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("business trip of charge %s: %w", chargeId, utils.ErrorRecordNotFound)
		}
		return nil, err
	}
	return &trip, nil
}
