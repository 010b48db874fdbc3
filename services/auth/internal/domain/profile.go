package domain

import (
	"strings"
	"time"

	"github.com/diagnosis/carbonmrv/internal/utils"
)

// ProfileUpdate is a partial farmer record. A nil field is left untouched;
// slices count as present when non-nil, so an empty list clears the field.
// Identity, verification status and the income estimate are not updatable.
type ProfileUpdate struct {
	Name                 *string      `json:"name,omitempty" validate:"omitempty,max=128"`
	Phone                *string      `json:"phone,omitempty" validate:"omitempty,max=16"`
	AadhaarID            *string      `json:"aadhaarId,omitempty" validate:"omitempty,len=12,numeric"`
	PANNumber            *string      `json:"panNumber,omitempty" validate:"omitempty,len=10,alphanum"`
	FarmerID             *string      `json:"farmerId,omitempty" validate:"omitempty,max=64"`
	FarmName             *string      `json:"farmName,omitempty" validate:"omitempty,max=128"`
	Location             *Location    `json:"location,omitempty"`
	LandSize             *float64     `json:"landSize,omitempty" validate:"omitempty,gte=0"`
	LandUnit             *string      `json:"landUnit,omitempty" validate:"omitempty,oneof=acres hectares"`
	FarmingType          *string      `json:"farmingType,omitempty" validate:"omitempty,max=64"`
	PrimaryCrops         []string     `json:"primaryCrops,omitempty" validate:"max=32,dive,max=64"`
	IrrigationType       *string      `json:"irrigationType,omitempty" validate:"omitempty,max=64"`
	SustainablePractices []string     `json:"sustainablePractices,omitempty" validate:"max=32,dive,max=64"`
	InterestedProjects   []string     `json:"interestedProjects,omitempty" validate:"max=32,dive,max=64"`
	BankDetails          *BankDetails `json:"bankDetails,omitempty"`
}

func (u *ProfileUpdate) Normalize() {
	trim := func(s *string) {
		if s != nil {
			*s = strings.TrimSpace(*s)
		}
	}
	trim(u.Name)
	trim(u.FarmerID)
	trim(u.FarmName)
	trim(u.FarmingType)
	trim(u.IrrigationType)
	if u.Phone != nil {
		*u.Phone = utils.NormalizePhone(*u.Phone)
	}
	if u.AadhaarID != nil {
		*u.AadhaarID = utils.DigitsOnly(*u.AadhaarID)
	}
	if u.PANNumber != nil {
		*u.PANNumber = strings.ToUpper(strings.TrimSpace(*u.PANNumber))
	}
	if u.LandUnit != nil {
		*u.LandUnit = strings.ToLower(strings.TrimSpace(*u.LandUnit))
	}
	if u.Location != nil {
		u.Location.Pincode = strings.TrimSpace(u.Location.Pincode)
	}
	if u.BankDetails != nil {
		u.BankDetails.AccountNumber = utils.DigitsOnly(u.BankDetails.AccountNumber)
		u.BankDetails.IFSCCode = strings.ToUpper(strings.TrimSpace(u.BankDetails.IFSCCode))
	}
	u.PrimaryCrops = utils.NormalizeTags(u.PrimaryCrops)
	u.SustainablePractices = utils.NormalizeTags(u.SustainablePractices)
	u.InterestedProjects = utils.NormalizeTags(u.InterestedProjects)
}

func (u *ProfileUpdate) Validate() error {
	return validateStruct(u)
}

// TouchesIncome reports whether the update carries any input of the income
// estimate.
func (u *ProfileUpdate) TouchesIncome() bool {
	return u.LandSize != nil || u.LandUnit != nil || u.SustainablePractices != nil
}

// Apply merges the update onto f, stamps UpdatedAt and recomputes the income
// estimate when one of its inputs changed. It returns the JSON names of the
// fields that were present.
func (u *ProfileUpdate) Apply(f *Farmer, now time.Time) []string {
	var changed []string
	setString := func(name string, src *string, dst *string) {
		if src != nil {
			*dst = *src
			changed = append(changed, name)
		}
	}

	setString("name", u.Name, &f.Name)
	setString("phone", u.Phone, &f.Phone)
	setString("aadhaarId", u.AadhaarID, &f.AadhaarID)
	setString("panNumber", u.PANNumber, &f.PANNumber)
	setString("farmerId", u.FarmerID, &f.FarmerID)
	setString("farmName", u.FarmName, &f.FarmName)
	setString("landUnit", u.LandUnit, &f.LandUnit)
	setString("farmingType", u.FarmingType, &f.FarmingType)
	setString("irrigationType", u.IrrigationType, &f.IrrigationType)

	if u.Location != nil {
		loc := *u.Location
		f.Location = &loc
		changed = append(changed, "location")
	}
	if u.LandSize != nil {
		size := *u.LandSize
		f.LandSize = &size
		changed = append(changed, "landSize")
	}
	if u.BankDetails != nil {
		bank := *u.BankDetails
		f.BankDetails = &bank
		changed = append(changed, "bankDetails")
	}
	if u.PrimaryCrops != nil {
		f.PrimaryCrops = cloneStrings(u.PrimaryCrops)
		changed = append(changed, "primaryCrops")
	}
	if u.SustainablePractices != nil {
		f.SustainablePractices = cloneStrings(u.SustainablePractices)
		changed = append(changed, "sustainablePractices")
	}
	if u.InterestedProjects != nil {
		f.InterestedProjects = cloneStrings(u.InterestedProjects)
		changed = append(changed, "interestedProjects")
	}

	if u.TouchesIncome() {
		f.RecomputeIncome()
	}
	f.UpdatedAt = now
	return changed
}
