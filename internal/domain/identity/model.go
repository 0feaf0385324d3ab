package identity

import (
	"encoding/json"
	"strings"
)

// Role discriminates the two kinds of account.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RolePatient || r == RoleDoctor
}

// PaymentMethod types.
const (
	PaymentCreditCard  = "credit_card"
	PaymentPayPal      = "paypal"
	PaymentBankAccount = "bank_account"
)

// PaymentMethod is a saved way for a patient to pay.
type PaymentMethod struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	LastFour   string `json:"lastFour,omitempty"`
	CardType   string `json:"cardType,omitempty"`
	ExpiryDate string `json:"expiryDate,omitempty"`
	IsDefault  bool   `json:"isDefault"`
	Holder     string `json:"holder"`
}

type EmergencyContact struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	Phone        string `json:"phone"`
}

// TimeRange is an "HH:MM" to "HH:MM" window within one day.
type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Availability maps a weekday name ("Monday") to its ordered windows.
type Availability map[string][]TimeRange

// User is an account. Role selects which of the optional groups below are
// meaningful; fields of the other role stay empty and are not encoded.
type User struct {
	ID                string `json:"id"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	Role              Role   `json:"role"`
	ProfileCompleted  bool   `json:"profileCompleted"`
	BiometricsEnabled bool   `json:"biometricsEnabled,omitempty"`
	PhoneNumber       string `json:"phoneNumber,omitempty"`
	EmailVerified     bool   `json:"emailVerified,omitempty"`
	PhoneVerified     bool   `json:"phoneVerified,omitempty"`

	// Patient
	DateOfBirth       string            `json:"dateOfBirth,omitempty"`
	MedicalHistory    []string          `json:"medicalHistory,omitempty"`
	Allergies         []string          `json:"allergies,omitempty"`
	Medications       []string          `json:"medications,omitempty"`
	InsuranceProvider string            `json:"insuranceProvider,omitempty"`
	InsuranceID       string            `json:"insuranceId,omitempty"`
	EmergencyContact  *EmergencyContact `json:"emergencyContact,omitempty"`
	PaymentMethods    []PaymentMethod   `json:"paymentMethods,omitempty"`

	// Doctor
	Specialty         string       `json:"specialty,omitempty"`
	License           string       `json:"license,omitempty"`
	Education         []string     `json:"education,omitempty"`
	Experience        int          `json:"experience,omitempty"`
	Availability      Availability `json:"availability,omitempty"`
	Rating            float64      `json:"rating,omitempty"`
	ConsultationFee   float64      `json:"consultationFee,omitempty"`
	Bio               string       `json:"bio,omitempty"`
	AcceptedInsurance []string     `json:"acceptedInsurance,omitempty"`
}

// MarshalJSON always encodes the collection fields of the user's own role,
// empty or not, and never those of the other role.
func (u User) MarshalJSON() ([]byte, error) {
	type plain User
	out := struct {
		plain
		PaymentMethods    *[]PaymentMethod `json:"paymentMethods,omitempty"`
		Availability      *Availability    `json:"availability,omitempty"`
		AcceptedInsurance *[]string        `json:"acceptedInsurance,omitempty"`
	}{plain: plain(u)}

	switch u.Role {
	case RolePatient:
		pm := u.PaymentMethods
		if pm == nil {
			pm = []PaymentMethod{}
		}
		out.PaymentMethods = &pm
	case RoleDoctor:
		av := u.Availability
		if av == nil {
			av = Availability{}
		}
		ins := u.AcceptedInsurance
		if ins == nil {
			ins = []string{}
		}
		out.Availability = &av
		out.AcceptedInsurance = &ins
	}
	return json.Marshal(out)
}

// IsPatient reports whether u is a patient account.
func (u *User) IsPatient() bool { return u != nil && u.Role == RolePatient }

// IsDoctor reports whether u is a doctor account.
func (u *User) IsDoctor() bool { return u != nil && u.Role == RoleDoctor }

// Clone returns a deep copy of u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.MedicalHistory = cloneStrings(u.MedicalHistory)
	c.Allergies = cloneStrings(u.Allergies)
	c.Medications = cloneStrings(u.Medications)
	c.Education = cloneStrings(u.Education)
	c.AcceptedInsurance = cloneStrings(u.AcceptedInsurance)
	if u.EmergencyContact != nil {
		ec := *u.EmergencyContact
		c.EmergencyContact = &ec
	}
	if u.PaymentMethods != nil {
		c.PaymentMethods = make([]PaymentMethod, len(u.PaymentMethods))
		copy(c.PaymentMethods, u.PaymentMethods)
	}
	if u.Availability != nil {
		c.Availability = make(Availability, len(u.Availability))
		for day, ranges := range u.Availability {
			c.Availability[day] = append([]TimeRange(nil), ranges...)
		}
	}
	return &c
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string{}, s...)
}

// applyRoleDefaults gives a new account the empty collections of its role.
func (u *User) applyRoleDefaults() {
	switch u.Role {
	case RolePatient:
		if u.PaymentMethods == nil {
			u.PaymentMethods = []PaymentMethod{}
		}
	case RoleDoctor:
		if u.Availability == nil {
			u.Availability = Availability{}
		}
		if u.AcceptedInsurance == nil {
			u.AcceptedInsurance = []string{}
		}
	}
}

// nameFromEmail derives a display name from the local part of an address.
func nameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

func sameEmail(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// ProfileUpdate carries the fields a profile edit may change. Nil fields are
// left as they are. Identity fields (id, role) cannot be changed.
type ProfileUpdate struct {
	Name        *string `json:"name,omitempty"`
	Email       *string `json:"email,omitempty"`
	PhoneNumber *string `json:"phoneNumber,omitempty"`

	DateOfBirth       *string           `json:"dateOfBirth,omitempty"`
	MedicalHistory    *[]string         `json:"medicalHistory,omitempty"`
	Allergies         *[]string         `json:"allergies,omitempty"`
	Medications       *[]string         `json:"medications,omitempty"`
	InsuranceProvider *string           `json:"insuranceProvider,omitempty"`
	InsuranceID       *string           `json:"insuranceId,omitempty"`
	EmergencyContact  *EmergencyContact `json:"emergencyContact,omitempty"`

	Specialty         *string       `json:"specialty,omitempty"`
	License           *string       `json:"license,omitempty"`
	Education         *[]string     `json:"education,omitempty"`
	Experience        *int          `json:"experience,omitempty"`
	Availability      *Availability `json:"availability,omitempty"`
	ConsultationFee   *float64      `json:"consultationFee,omitempty"`
	Bio               *string       `json:"bio,omitempty"`
	AcceptedInsurance *[]string     `json:"acceptedInsurance,omitempty"`
}

// Apply merges p onto u and marks the profile completed.
func (p ProfileUpdate) Apply(u *User) {
	setString(&u.Name, p.Name)
	setString(&u.Email, p.Email)
	setString(&u.PhoneNumber, p.PhoneNumber)
	setString(&u.DateOfBirth, p.DateOfBirth)
	setStrings(&u.MedicalHistory, p.MedicalHistory)
	setStrings(&u.Allergies, p.Allergies)
	setStrings(&u.Medications, p.Medications)
	setString(&u.InsuranceProvider, p.InsuranceProvider)
	setString(&u.InsuranceID, p.InsuranceID)
	if p.EmergencyContact != nil {
		ec := *p.EmergencyContact
		u.EmergencyContact = &ec
	}
	setString(&u.Specialty, p.Specialty)
	setString(&u.License, p.License)
	setStrings(&u.Education, p.Education)
	if p.Experience != nil {
		u.Experience = *p.Experience
	}
	if p.Availability != nil {
		u.Availability = (&User{Availability: *p.Availability}).Clone().Availability
	}
	if p.ConsultationFee != nil {
		u.ConsultationFee = *p.ConsultationFee
	}
	setString(&u.Bio, p.Bio)
	setStrings(&u.AcceptedInsurance, p.AcceptedInsurance)
	u.ProfileCompleted = true
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setStrings(dst *[]string, v *[]string) {
	if v != nil {
		*dst = cloneStrings(*v)
		if *dst == nil {
			*dst = []string{}
		}
	}
}
