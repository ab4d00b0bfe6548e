package main

import (
	"log"

	"github.com/school-system/results-engine/internal/models"
	"gorm.io/gorm"
)

// standardSubjects is the national secondary catalogue. A-Level subjects use
// their examination codes so they never collide with O-Level codes.
func standardSubjects() []models.Subject {
	oLevel := []models.Subject{
		{Name: "English Language", Code: "ENG", IsCompulsory: true},
		{Name: "Mathematics", Code: "MATH", IsCompulsory: true},
		{Name: "Physics", Code: "PHY", IsCompulsory: true},
		{Name: "Chemistry", Code: "CHEM", IsCompulsory: true},
		{Name: "Biology", Code: "BIO", IsCompulsory: true},
		{Name: "Geography", Code: "GEO", IsCompulsory: true},
		{Name: "History & Political Education", Code: "HIST", IsCompulsory: true},
		{Name: "Christian Religious Education", Code: "CRE"},
		{Name: "Islamic Religious Education", Code: "IRE"},
		{Name: "Entrepreneurship Education", Code: "ENT"},
		{Name: "Kiswahili", Code: "KIS"},
		{Name: "Physical Education", Code: "PE"},
		{Name: "Agriculture", Code: "AGR"},
		{Name: "Literature in English", Code: "LIT"},
		{Name: "Art and Design", Code: "AD"},
	}

	aPrincipal := []models.Subject{
		{Name: "Principal Mathematics", Code: "P425"},
		{Name: "Principal Physics", Code: "P510"},
		{Name: "Principal Chemistry", Code: "P525"},
		{Name: "Principal Biology", Code: "P530"},
		{Name: "Principal Geography", Code: "P250"},
		{Name: "Principal History", Code: "P210"},
		{Name: "Principal Economics", Code: "P220"},
		{Name: "Principal Divinity", Code: "P245"},
		{Name: "Principal Literature in English", Code: "P310"},
		{Name: "Principal Entrepreneurship", Code: "P230"},
		{Name: "Principal Agriculture", Code: "P515"},
		{Name: "Principal Fine Art", Code: "P615"},
		{Name: "Principal Luganda", Code: "P335"},
	}

	aSubsidiary := []models.Subject{
		{Name: "General Paper", Code: "S101", IsCompulsory: true},
		{Name: "Subsidiary ICT", Code: "S850"},
		{Name: "Subsidiary Mathematics", Code: "S475"},
	}

	all := make([]models.Subject, 0, len(oLevel)+len(aPrincipal)+len(aSubsidiary))
	for _, s := range oLevel {
		s.Curriculum = models.CurriculumOLevel
		all = append(all, s)
	}
	for _, s := range append(aPrincipal, aSubsidiary...) {
		s.Curriculum = models.CurriculumALevel
		all = append(all, s)
	}
	return all
}

func seedSubjects(db *gorm.DB) {
	log.Println("Seeding standard subjects...")

	var count int64
	db.Model(&models.Subject{}).Count(&count)
	if count > 0 {
		log.Println("Subjects already exist")
		return
	}

	subjects := standardSubjects()
	if err := db.CreateInBatches(subjects, 100).Error; err != nil {
		log.Fatal("Failed to seed standard subjects:", err)
	}

	log.Printf("Successfully seeded %d standard subjects", len(subjects))
}
