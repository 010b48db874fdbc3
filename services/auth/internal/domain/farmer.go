package domain

import (
	"math"
	"strings"
	"time"

	"github.com/diagnosis/carbonmrv/internal/utils"
)

const (
	LandUnitAcres    = "acres"
	LandUnitHectares = "hectares"

	hectaresPerAcre      = 0.405
	baseIncomePerHectare = 1000.0
	practiceBonus        = 0.1
)

type Location struct {
	Address   string   `json:"address,omitempty" validate:"max=256"`
	Pincode   string   `json:"pincode,omitempty" validate:"omitempty,len=6,numeric"`
	State     string   `json:"state,omitempty" validate:"max=64"`
	District  string   `json:"district,omitempty" validate:"max=64"`
	Latitude  *float64 `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`
}

type BankDetails struct {
	AccountNumber string `json:"accountNumber,omitempty" validate:"omitempty,min=6,max=20,numeric"`
	IFSCCode      string `json:"ifscCode,omitempty" validate:"omitempty,len=11,alphanum"`
}

type Farmer struct {
	ID                   string       `json:"id"`
	Email                string       `json:"email"`
	Name                 string       `json:"name,omitempty"`
	Phone                string       `json:"phone,omitempty"`
	AadhaarID            string       `json:"aadhaarId,omitempty"`
	PANNumber            string       `json:"panNumber,omitempty"`
	FarmerID             string       `json:"farmerId,omitempty"`
	FarmName             string       `json:"farmName,omitempty"`
	Location             *Location    `json:"location,omitempty"`
	LandSize             *float64     `json:"landSize,omitempty"`
	LandUnit             string       `json:"landUnit,omitempty"`
	FarmingType          string       `json:"farmingType,omitempty"`
	PrimaryCrops         []string     `json:"primaryCrops,omitempty"`
	IrrigationType       string       `json:"irrigationType,omitempty"`
	SustainablePractices []string     `json:"sustainablePractices,omitempty"`
	InterestedProjects   []string     `json:"interestedProjects,omitempty"`
	BankDetails          *BankDetails `json:"bankDetails,omitempty"`
	Verified             bool         `json:"verified"`
	EstimatedIncome      int64        `json:"estimatedIncome"`
	CreatedAt            time.Time    `json:"createdAt"`
	UpdatedAt            time.Time    `json:"updatedAt"`
}

// EstimateIncome converts land to hectares, applies the per-hectare base rate
// and a 10% bonus per sustainable practice, rounding to whole rupees.
func EstimateIncome(landSize float64, landUnit string, practices int) int64 {
	hectares := landSize
	if landUnit == LandUnitAcres {
		hectares = landSize * hectaresPerAcre
	}
	baseIncome := hectares * baseIncomePerHectare
	multiplier := 1 + float64(practices)*practiceBonus
	return int64(math.Round(baseIncome * multiplier))
}

// RecomputeIncome derives EstimatedIncome from the record's current inputs.
// A missing land size counts as zero and a missing unit as acres.
func (f *Farmer) RecomputeIncome() {
	size := 0.0
	if f.LandSize != nil {
		size = *f.LandSize
	}
	unit := f.LandUnit
	if unit == "" {
		unit = LandUnitAcres
	}
	f.EstimatedIncome = EstimateIncome(size, unit, len(f.SustainablePractices))
}

// Clone returns a deep copy so callers outside a store never share slices or
// pointers with the stored record.
func (f *Farmer) Clone() *Farmer {
	if f == nil {
		return nil
	}
	c := *f
	if f.Location != nil {
		loc := *f.Location
		if f.Location.Latitude != nil {
			lat := *f.Location.Latitude
			loc.Latitude = &lat
		}
		if f.Location.Longitude != nil {
			lng := *f.Location.Longitude
			loc.Longitude = &lng
		}
		c.Location = &loc
	}
	if f.LandSize != nil {
		size := *f.LandSize
		c.LandSize = &size
	}
	if f.BankDetails != nil {
		bank := *f.BankDetails
		c.BankDetails = &bank
	}
	c.PrimaryCrops = cloneStrings(f.PrimaryCrops)
	c.SustainablePractices = cloneStrings(f.SustainablePractices)
	c.InterestedProjects = cloneStrings(f.InterestedProjects)
	return &c
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

// RegistrationData is the optional payload sent with the first OTP
// verification for an email.
type RegistrationData struct {
	Name                 string   `json:"name" validate:"max=128"`
	Phone                string   `json:"phone" validate:"omitempty,min=7,max=16"`
	FarmName             string   `json:"farmName" validate:"max=128"`
	LandSize             *float64 `json:"landSize" validate:"omitempty,gte=0"`
	LandUnit             string   `json:"landUnit" validate:"omitempty,oneof=acres hectares"`
	FarmingType          string   `json:"farmingType" validate:"max=64"`
	PrimaryCrops         []string `json:"primaryCrops" validate:"max=32,dive,max=64"`
	IrrigationType       string   `json:"irrigationType" validate:"max=64"`
	Address              string   `json:"address" validate:"max=256"`
	Pincode              string   `json:"pincode" validate:"omitempty,len=6,numeric"`
	State                string   `json:"state" validate:"max=64"`
	District             string   `json:"district" validate:"max=64"`
	Latitude             *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude            *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	AadhaarNumber        string   `json:"aadhaarNumber" validate:"omitempty,len=12,numeric"`
	PANNumber            string   `json:"panNumber" validate:"omitempty,len=10,alphanum"`
	BankAccountNumber    string   `json:"bankAccountNumber" validate:"omitempty,min=6,max=20,numeric"`
	IFSCCode             string   `json:"ifscCode" validate:"omitempty,len=11,alphanum"`
	InterestedProjects   []string `json:"interestedProjects" validate:"max=32,dive,max=64"`
	SustainablePractices []string `json:"sustainablePractices" validate:"max=32,dive,max=64"`
}

func (r *RegistrationData) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Phone = utils.NormalizePhone(r.Phone)
	r.FarmName = strings.TrimSpace(r.FarmName)
	r.LandUnit = strings.ToLower(strings.TrimSpace(r.LandUnit))
	if r.LandSize != nil && r.LandUnit == "" {
		r.LandUnit = LandUnitAcres
	}
	r.Pincode = strings.TrimSpace(r.Pincode)
	r.AadhaarNumber = utils.DigitsOnly(r.AadhaarNumber)
	r.PANNumber = strings.ToUpper(strings.TrimSpace(r.PANNumber))
	r.IFSCCode = strings.ToUpper(strings.TrimSpace(r.IFSCCode))
	r.BankAccountNumber = utils.DigitsOnly(r.BankAccountNumber)
	r.PrimaryCrops = utils.NormalizeTags(r.PrimaryCrops)
	r.InterestedProjects = utils.NormalizeTags(r.InterestedProjects)
	r.SustainablePractices = utils.NormalizeTags(r.SustainablePractices)
}

func (r *RegistrationData) Validate() error {
	return validateStruct(r)
}

// NewFarmer builds a verified farmer for email, filling optional fields from
// reg when it is non-nil. EstimatedIncome is always derived, never copied.
func NewFarmer(id, email string, reg *RegistrationData, now time.Time) *Farmer {
	f := &Farmer{
		ID:        id,
		Email:     email,
		Verified:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if reg == nil {
		return f
	}

	f.Name = reg.Name
	f.Phone = reg.Phone
	f.FarmName = reg.FarmName
	f.LandSize = reg.LandSize
	f.LandUnit = reg.LandUnit
	f.FarmingType = reg.FarmingType
	f.PrimaryCrops = reg.PrimaryCrops
	f.IrrigationType = reg.IrrigationType
	f.AadhaarID = reg.AadhaarNumber
	f.PANNumber = reg.PANNumber
	f.InterestedProjects = reg.InterestedProjects
	f.SustainablePractices = reg.SustainablePractices

	if reg.Address != "" || reg.Pincode != "" || reg.State != "" || reg.District != "" || reg.Latitude != nil || reg.Longitude != nil {
		f.Location = &Location{
			Address:   reg.Address,
			Pincode:   reg.Pincode,
			State:     reg.State,
			District:  reg.District,
			Latitude:  reg.Latitude,
			Longitude: reg.Longitude,
		}
	}
	if reg.BankAccountNumber != "" || reg.IFSCCode != "" {
		f.BankDetails = &BankDetails{AccountNumber: reg.BankAccountNumber, IFSCCode: reg.IFSCCode}
	}

	f.RecomputeIncome()
	return f.Clone()
}
