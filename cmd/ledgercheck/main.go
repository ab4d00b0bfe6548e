package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/school-system/results-engine/internal/history"
	"github.com/school-system/results-engine/internal/models"
	"github.com/school-system/results-engine/internal/store"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// ledgercheck replays the marks history of every result and reports any
// result whose stored state differs from its ledger. It never writes.
func main() {
	asJSON := flag.Bool("json", false, "print the reports as JSON")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	dsn := os.Getenv("DATABASE_URL")
	driver := os.Getenv("DB_DRIVER")
	if dsn == "" {
		host := os.Getenv("DB_HOST")
		port := os.Getenv("DB_PORT")
		user := os.Getenv("DB_USER")
		password := os.Getenv("DB_PASSWORD")
		dbname := os.Getenv("DB_NAME")
		if driver == "mysql" {
			dsn = user + ":" + password + "@tcp(" + host + ":" + port + ")/" + dbname + "?charset=utf8mb4&parseTime=True&loc=Local"
		} else {
			dsn = "host=" + host + " port=" + port + " user=" + user + " password=" + password + " dbname=" + dbname + " sslmode=disable"
		}
	}

	dialector := postgres.Open(dsn)
	if driver == "mysql" {
		dialector = mysql.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	st := store.NewGorm(db)
	ctx := context.Background()
	var reports []*history.Report
	clean := true
	for _, model := range []models.ResultModel{models.ResultModelOLevel, models.ResultModelALevel} {
		report, err := history.Verify(ctx, st, model)
		if err != nil {
			log.Fatalf("Failed to verify %s: %v", model, err)
		}
		reports = append(reports, report)
		clean = clean && report.OK()
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			log.Fatal(err)
		}
	} else {
		for _, r := range reports {
			log.Printf("%s: %d results, %d entries, %d drift", r.Model, r.Results, r.Entries, len(r.Drift))
			for _, d := range r.Drift {
				log.Printf("  %s %s: %s", d.ResultID, d.Kind, d.Detail)
			}
		}
	}

	if !clean {
		os.Exit(1)
	}
	log.Println("Marks history is consistent with stored results")
}
