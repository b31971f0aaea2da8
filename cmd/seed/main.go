// seed inserts a verified admin and a back-dated batch of invitations into
// the local dev database so the reminder scheduler has work on its next pass.
// Run: go run ./cmd/seed
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/blackbelt-platform/core/internal/cryptox"
	"github.com/blackbelt-platform/core/internal/domain"
	"github.com/blackbelt-platform/core/internal/infrastructure/postgres"
	"github.com/google/uuid"
)

const (
	seedEmail        = "admin@seed.local"
	seedPassword     = "seed-password"
	seedAssessmentID = "seed-assessment"
	day              = 24 * time.Hour
)

// Each respondent's invitation is sent ago before now, which places it at a
// different point of the cadence.
var respondents = []struct {
	name string
	ago  time.Duration
}{
	{"Ana Souza", 1 * day},      // nothing due yet
	{"Bruno Lima", 2*day + 1},   // first reminder due
	{"Carla Dias", 3 * day},     // first reminder due
	{"Diego Alves", 6 * day},    // thresholds 1 and 2 collapse into reminder 2
	{"Elisa Rocha", 10 * day},   // collapses into reminder 3
	{"Fabio Nunes", 15 * day},   // expires on the next pass
	{"Gabi Martins", 12 * time.Hour},
}

func main() {
	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	pool, err := postgres.NewPool(ctx, dbURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	users := postgres.NewUserRepository(pool)
	invitations := postgres.NewInvitationRepository(pool, logger)

	admin, created, err := ensureAdmin(ctx, users)
	if err != nil {
		log.Fatalf("admin: %v", err)
	}

	existing, err := invitations.ListByAssessment(ctx, admin.TenantID, seedAssessmentID)
	if err != nil {
		log.Fatalf("list invitations: %v", err)
	}

	now := time.Now()
	var inserted int
	if len(existing) == 0 {
		for i, r := range respondents {
			sentAt := now.Add(-r.ago)
			next := domain.NextReminderAt(sentAt, nil)
			_, err := invitations.Create(ctx, &domain.Invitation{
				TenantID:           admin.TenantID,
				AssessmentID:       seedAssessmentID,
				RespondentName:     r.name,
				RespondentEmail:    fmt.Sprintf("respondent%02d@seed.local", i+1),
				RespondentPosition: "Operador",
				Status:             domain.InvitationPending,
				SentAt:             sentAt,
				ExpiresAt:          sentAt.Add(domain.ExpiryWindow),
				NextReminderAt:     next,
			})
			if err != nil {
				log.Fatalf("insert invitation for %s: %v", r.name, err)
			}
			inserted++
		}
	}

	fmt.Println("Seed complete")
	fmt.Println()
	fmt.Printf("  Admin:        %s / %s", seedEmail, seedPassword)
	if !created {
		fmt.Print("  (already existed)")
	}
	fmt.Println()
	fmt.Printf("  Tenant ID:    %s\n", admin.TenantID)
	fmt.Printf("  Assessment:   %s\n", seedAssessmentID)
	fmt.Printf("  Invitations:  %d created (%d already present)\n", inserted, len(existing))
	fmt.Println()
	fmt.Println("How to test:")
	fmt.Println()
	fmt.Println("  Step 1: log in")
	fmt.Println()
	fmt.Printf("    curl -s -X POST http://localhost:8080/auth/login \\\n")
	fmt.Printf("      -H 'Content-Type: application/json' \\\n")
	fmt.Printf("      -d '{\"email\":\"%s\",\"password\":\"%s\"}'\n", seedEmail, seedPassword)
	fmt.Println()
	fmt.Println("  Step 2: run one reminder pass")
	fmt.Println()
	fmt.Println("    SCHEDULER_RUN_ONCE=true go run ./cmd/scheduler")
	fmt.Println()
	fmt.Println("  Step 3: check the outcome")
	fmt.Println()
	fmt.Println("    export JWT=eyJ...")
	fmt.Printf("    curl -s http://localhost:8080/assessments/%s/reminder-stats -H \"Authorization: Bearer $JWT\"\n", seedAssessmentID)
	fmt.Println()
	fmt.Println("  What to expect after one pass:")
	fmt.Println("    Bruno, Carla          ->  reminder 1")
	fmt.Println("    Diego                 ->  reminder 2 (missed thresholds collapse)")
	fmt.Println("    Elisa                 ->  reminder 3")
	fmt.Println("    Fabio                 ->  expired, no reminder")
	fmt.Println("    Ana, Gabi             ->  nothing yet")
}

func ensureAdmin(ctx context.Context, users *postgres.UserRepository) (*domain.User, bool, error) {
	u, err := users.FindByEmail(ctx, seedEmail)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, false, err
	}

	hash, err := cryptox.HashPassword(seedPassword)
	if err != nil {
		return nil, false, err
	}
	u, err = users.Create(ctx, &domain.User{
		TenantID:      uuid.NewString(),
		Email:         seedEmail,
		Name:          "Seed Admin",
		PasswordHash:  hash,
		EmailVerified: true,
		Role:          domain.RoleAdmin,
	})
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}
