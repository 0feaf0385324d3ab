package clinical

// Prescription statuses. New prescriptions are active.
const (
	PrescriptionActive    = "active"
	PrescriptionCompleted = "completed"
	PrescriptionCancelled = "cancelled"
)

// Layout of Prescription.IssuedDate.
const IssuedDateLayout = "2006-01-02"

type Consultation struct {
	ID            string         `json:"id"`
	AppointmentID string         `json:"appointmentId"`
	PatientID     string         `json:"patientId"`
	DoctorID      string         `json:"doctorId"`
	Date          string         `json:"date"`
	Duration      int            `json:"duration"` // minutes
	Notes         string         `json:"notes,omitempty"`
	Diagnosis     string         `json:"diagnosis,omitempty"`
	Prescriptions []Prescription `json:"prescriptions,omitempty"`
	FollowUp      *FollowUp      `json:"followUp,omitempty"`
}

type FollowUp struct {
	Recommended bool   `json:"recommended"`
	Date        string `json:"date,omitempty"`
}

type Prescription struct {
	ID             string `json:"id"`
	ConsultationID string `json:"consultationId"`
	MedicationName string `json:"medicationName"`
	Dosage         string `json:"dosage"`
	Frequency      string `json:"frequency"`
	Duration       string `json:"duration"`
	Notes          string `json:"notes,omitempty"`
	IssuedDate     string `json:"issuedDate"`
	Status         string `json:"status"`
}

// ConsultationRequest is what a doctor submits when closing an appointment.
type ConsultationRequest struct {
	AppointmentID string                `json:"appointmentId"`
	Duration      int                   `json:"duration"`
	Notes         string                `json:"notes,omitempty"`
	Diagnosis     string                `json:"diagnosis,omitempty"`
	Prescriptions []PrescriptionRequest `json:"prescriptions,omitempty"`
	FollowUp      *FollowUp             `json:"followUp,omitempty"`
}

type PrescriptionRequest struct {
	MedicationName string `json:"medicationName"`
	Dosage         string `json:"dosage"`
	Frequency      string `json:"frequency"`
	Duration       string `json:"duration"`
	Notes          string `json:"notes,omitempty"`
}
