package main

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/HimanshuNaik19/feedback-flash-qr/internal/config"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/database"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/domain"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/logger"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/repository"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/service"
)

var tables = []string{"feedback", "qr_codes"}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logger.Setup(cfg.Log.Level, cfg.Log.Format)

	reader := bufio.NewReader(os.Stdin)

	for {
		printMenu(cfg)
		fmt.Print("Choose: ")
		input, _ := reader.ReadString('\n')
		input = strings.TrimSpace(input)

		switch input {
		case "1":
			createDatabase(cfg, reader)
		case "2":
			migrateSchema(cfg)
		case "3":
			migrateFresh(cfg, reader)
		case "4":
			truncateTables(cfg, reader)
		case "5":
			seedData(cfg, reader)
		case "6":
			deleteDatabase(cfg, reader)
		case "0":
			fmt.Println("Bye.")
			os.Exit(0)
		default:
			fmt.Println("Invalid choice")
		}

		fmt.Println()
		fmt.Print("Press Enter to continue...")
		reader.ReadString('\n')
	}
}

func printMenu(cfg *config.Config) {
	fmt.Println()
	fmt.Println("========================================")
	fmt.Println("    FEEDBACK FLASH QR DATABASE CLI")
	fmt.Println("========================================")
	fmt.Printf("driver: %s\n", cfg.Database.Driver)
	fmt.Println()
	fmt.Println("1. Create database (if missing) + migrate schema")
	fmt.Println("2. Migrate schema")
	fmt.Println("3. Migrate fresh (drop tables + migrate)")
	fmt.Println("4. Truncate tables")
	fmt.Println("5. Seed demo QR codes and feedback")
	fmt.Println("6. Drop database")
	fmt.Println("0. Exit")
	fmt.Println()
	fmt.Println("----------------------------------------")
}

func confirm(reader *bufio.Reader, prompt, want string) bool {
	fmt.Print(prompt)
	input, _ := reader.ReadString('\n')
	if strings.TrimSpace(input) != want {
		fmt.Println("Cancelled.")
		return false
	}
	return true
}

func requirePostgres(cfg *config.Config) bool {
	if cfg.Database.Driver != "postgres" {
		fmt.Printf("Only available for postgres, current driver is %s.\n", cfg.Database.Driver)
		return false
	}
	return true
}

// getPostgresConn connects to the server's maintenance database.
func getPostgresConn(cfg *config.Config) (*sql.DB, error) {
	server := cfg.Database
	server.Name = "postgres"
	return sql.Open("postgres", database.DSN(server))
}

func databaseExists(cfg *config.Config) (bool, error) {
	db, err := getPostgresConn(cfg)
	if err != nil {
		return false, err
	}
	defer db.Close()

	var exists bool
	err = db.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", cfg.Database.Name).Scan(&exists)
	return exists, err
}

func createDatabase(cfg *config.Config, reader *bufio.Reader) {
	fmt.Println()
	fmt.Println("--- Create Database + Migrate Schema ---")
	if !requirePostgres(cfg) {
		migrateSchema(cfg)
		return
	}

	exists, err := databaseExists(cfg)
	if err != nil {
		fmt.Printf("Error checking database: %v\n", err)
		return
	}

	if exists {
		fmt.Printf("Database '%s' already exists.\n", cfg.Database.Name)
		if !confirm(reader, "Continue with schema migration? (y/n): ", "y") {
			return
		}
	} else {
		db, err := getPostgresConn(cfg)
		if err != nil {
			fmt.Printf("Connection error: %v\n", err)
			return
		}
		defer db.Close()

		if _, err := db.Exec("CREATE DATABASE " + pq.QuoteIdentifier(cfg.Database.Name)); err != nil {
			fmt.Printf("Error creating database: %v\n", err)
			return
		}
		fmt.Printf("Database '%s' created.\n", cfg.Database.Name)
	}

	migrateSchema(cfg)
}

func migrateSchema(cfg *config.Config) {
	fmt.Println()
	fmt.Println("--- Migrate Schema ---")

	db, err := database.Connect(cfg)
	if err != nil {
		fmt.Printf("Connection error: %v\n", err)
		return
	}
	if err := database.Migrate(db); err != nil {
		fmt.Printf("Migration error: %v\n", err)
		return
	}

	fmt.Println("Schema migrated: qr_codes, feedback")
}

func migrateFresh(cfg *config.Config, reader *bufio.Reader) {
	fmt.Println()
	fmt.Println("--- Migrate Fresh ---")
	fmt.Println("WARNING: all data will be deleted!")
	if !confirm(reader, "Type 'FRESH' to confirm: ", "FRESH") {
		return
	}

	db, err := database.Connect(cfg)
	if err != nil {
		fmt.Printf("Connection error: %v\n", err)
		return
	}
	for _, table := range tables {
		fmt.Printf("Dropping %s...\n", table)
		if err := db.Migrator().DropTable(table); err != nil {
			fmt.Printf("Error dropping %s: %v\n", table, err)
			return
		}
	}

	migrateSchema(cfg)
}

func truncateTables(cfg *config.Config, reader *bufio.Reader) {
	fmt.Println()
	fmt.Println("--- Truncate Tables ---")
	fmt.Printf("These tables will be emptied: %s\n", strings.Join(tables, ", "))
	if !confirm(reader, "Type 'TRUNCATE' to confirm: ", "TRUNCATE") {
		return
	}

	db, err := database.Connect(cfg)
	if err != nil {
		fmt.Printf("Connection error: %v\n", err)
		return
	}

	for _, table := range tables {
		fmt.Printf("Truncating %s...\n", table)
		stmt := "DELETE FROM " + table
		if cfg.Database.Driver == "postgres" {
			stmt = "TRUNCATE TABLE " + pq.QuoteIdentifier(table) + " CASCADE"
		}
		if err := db.Exec(stmt).Error; err != nil {
			fmt.Printf("Error truncating %s: %v\n", table, err)
		}
	}

	fmt.Println()
	fmt.Println("Truncate done!")
}

func deleteDatabase(cfg *config.Config, reader *bufio.Reader) {
	fmt.Println()
	fmt.Println("--- Drop Database ---")
	if cfg.Database.Driver == "sqlite" {
		if !confirm(reader, fmt.Sprintf("Type '%s' to delete the sqlite file: ", cfg.Database.SQLitePath), cfg.Database.SQLitePath) {
			return
		}
		if err := os.Remove(cfg.Database.SQLitePath); err != nil {
			fmt.Printf("Error deleting file: %v\n", err)
			return
		}
		fmt.Printf("'%s' deleted.\n", cfg.Database.SQLitePath)
		return
	}

	fmt.Printf("WARNING: database '%s' will be dropped permanently!\n", cfg.Database.Name)
	if !confirm(reader, "Type the database name to confirm: ", cfg.Database.Name) {
		return
	}

	db, err := getPostgresConn(cfg)
	if err != nil {
		fmt.Printf("Connection error: %v\n", err)
		return
	}
	defer db.Close()

	// Terminate existing connections
	_, _ = db.Exec(`
		SELECT pg_terminate_backend(pg_stat_activity.pid)
		FROM pg_stat_activity
		WHERE pg_stat_activity.datname = $1
		AND pid <> pg_backend_pid()
	`, cfg.Database.Name)

	if _, err := db.Exec("DROP DATABASE IF EXISTS " + pq.QuoteIdentifier(cfg.Database.Name)); err != nil {
		fmt.Printf("Error dropping database: %v\n", err)
		return
	}

	fmt.Printf("Database '%s' dropped.\n", cfg.Database.Name)
}

var (
	seedContexts = []string{
		"Table 1", "Table 2", "Table 3", "Table 4", "Patio", "Bar counter",
		"Takeaway desk", "Rooftop", "Private dining", "Garden",
	}
	seedNames    = []string{"Asha", "Rahul", "Priya", "Vikram", "Neha", "Arjun", "Kavya", "Rohan"}
	seedComments = []string{
		"Food was excellent", "Service was a bit slow", "Loved the ambience",
		"Too noisy tonight", "Will come again", "Average experience", "",
	}
)

func seedData(cfg *config.Config, reader *bufio.Reader) {
	fmt.Println()
	fmt.Println("--- Seed Demo Data ---")
	fmt.Print("How many QR codes? [5]: ")
	input, _ := reader.ReadString('\n')
	count := 5
	if n, err := strconv.Atoi(strings.TrimSpace(input)); err == nil && n > 0 {
		count = n
	}

	db, err := database.Connect(cfg)
	if err != nil {
		fmt.Printf("Connection error: %v\n", err)
		return
	}
	if err := database.Migrate(db); err != nil {
		fmt.Printf("Migration error: %v\n", err)
		return
	}

	ctx := context.Background()
	qrStore := repository.NewGormStore[domain.QRCode](db)
	fbStore := repository.NewGormStore[domain.Feedback](db)
	classifier := service.RatingClassifier{}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	now := time.Now().UTC().Truncate(time.Millisecond)

	var feedbackCount int
	for i := 0; i < count; i++ {
		created := now.Add(-time.Duration(rng.Intn(72)) * time.Hour)
		qr := domain.QRCode{
			ID:        uuid.NewString(),
			Context:   seedContexts[i%len(seedContexts)],
			CreatedAt: created,
			ExpiresAt: created.Add(time.Duration(24+rng.Intn(96)) * time.Hour),
			MaxScans:  20 + rng.Intn(80),
			IsActive:  rng.Intn(10) > 0,
		}

		responses := rng.Intn(8)
		for j := 0; j < responses; j++ {
			rating := 1 + rng.Intn(5)
			comment := seedComments[rng.Intn(len(seedComments))]
			fb := domain.Feedback{
				ID:          uuid.NewString(),
				QRCodeID:    qr.ID,
				Name:        seedNames[rng.Intn(len(seedNames))],
				PhoneNumber: fmt.Sprintf("+91 9%04d %05d", rng.Intn(10000), rng.Intn(100000)),
				Rating:      rating,
				Comment:     comment,
				Context:     qr.Context,
				Sentiment:   classifier.Classify(rating, comment),
				CreatedAt:   created.Add(time.Duration(j+1) * time.Minute),
			}
			if err := fbStore.Put(ctx, fb); err != nil {
				fmt.Printf("Error seeding feedback: %v\n", err)
				return
			}
			qr.CurrentScans++
			feedbackCount++
		}

		if err := qrStore.Put(ctx, qr); err != nil {
			fmt.Printf("Error seeding QR code: %v\n", err)
			return
		}
	}

	fmt.Printf("Seeded %d QR code(s) and %d feedback.\n", count, feedbackCount)
}
