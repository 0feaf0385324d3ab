package identity

import "github.com/Anup697028/mediwise-chat/internal/platform/localdb"

// SeedDoctors returns the doctors every new store starts with.
func SeedDoctors() []User {
	return []User{
		{
			ID:               "doc1",
			Email:            "dr.smith@example.com",
			Name:             "Dr. John Smith",
			Role:             RoleDoctor,
			ProfileCompleted: true,
			Specialty:        "Cardiology",
			License:          "MED12345",
			Education:        []string{"Harvard Medical School", "Johns Hopkins Residency"},
			Experience:       15,
			Availability: Availability{
				"Monday":    {{Start: "09:00", End: "12:00"}, {Start: "13:00", End: "17:00"}},
				"Wednesday": {{Start: "09:00", End: "12:00"}, {Start: "13:00", End: "17:00"}},
				"Friday":    {{Start: "09:00", End: "12:00"}, {Start: "13:00", End: "15:00"}},
			},
			Rating:            4.8,
			ConsultationFee:   150,
			Bio:               "Experienced cardiologist specializing in preventive care and heart disease management.",
			AcceptedInsurance: []string{"Blue Cross", "Aetna", "UnitedHealthcare"},
		},
		{
			ID:               "doc2",
			Email:            "dr.wong@example.com",
			Name:             "Dr. Emily Wong",
			Role:             RoleDoctor,
			ProfileCompleted: true,
			Specialty:        "Pediatrics",
			License:          "MED54321",
			Education:        []string{"Stanford Medical School", "UCLA Residency"},
			Experience:       10,
			Availability: Availability{
				"Tuesday":  {{Start: "08:00", End: "12:00"}, {Start: "13:00", End: "16:00"}},
				"Thursday": {{Start: "08:00", End: "12:00"}, {Start: "13:00", End: "16:00"}},
				"Saturday": {{Start: "10:00", End: "14:00"}},
			},
			Rating:            4.9,
			ConsultationFee:   120,
			Bio:               "Compassionate pediatrician dedicated to child wellness and developmental health.",
			AcceptedInsurance: []string{"Blue Cross", "Cigna", "Kaiser"},
		},
	}
}

// Seeds is passed to localdb.Database.Initialize.
func Seeds() []localdb.Seed {
	return []localdb.Seed{{Collection: localdb.Doctors, Value: SeedDoctors()}}
}
