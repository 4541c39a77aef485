package main

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medschedule/booking-engine/internal/db"
)

// seed creates the schema and a handful of practitioners for local
// development.

const schema = `
CREATE TABLE IF NOT EXISTS practitioners (
	id UUID PRIMARY KEY,
	slug TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	email TEXT NOT NULL DEFAULT '',
	clinic_email TEXT NOT NULL DEFAULT '',
	calendar_id TEXT NOT NULL DEFAULT '',
	working_days TEXT NOT NULL DEFAULT '0,1,2,3,4',
	work_start TIME NOT NULL DEFAULT '10:00',
	work_end TIME NOT NULL DEFAULT '18:00',
	consult_minutes INT NOT NULL DEFAULT 30,
	buffer_minutes INT NOT NULL DEFAULT 15,
	timezone TEXT NOT NULL DEFAULT 'Asia/Kolkata',
	notifications_enabled BOOLEAN NOT NULL DEFAULT TRUE,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS patients (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	phone TEXT NOT NULL,
	first_seen_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_seen_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS appointments (
	id UUID PRIMARY KEY,
	practitioner_id UUID NOT NULL REFERENCES practitioners(id),
	patient_id UUID NOT NULL REFERENCES patients(id),
	appointment_date DATE NOT NULL,
	appointment_time TIME NOT NULL,
	status TEXT NOT NULL,
	calendar_event_id TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

-- One live booking per slot; cancelled rows do not block rebooking.
CREATE UNIQUE INDEX IF NOT EXISTS uq_booked_slot
	ON appointments (practitioner_id, appointment_date, appointment_time)
	WHERE status = 'BOOKED';

CREATE INDEX IF NOT EXISTS idx_appointments_day
	ON appointments (practitioner_id, appointment_date);

CREATE TABLE IF NOT EXISTS event_logs (
	id BIGSERIAL PRIMARY KEY,
	event_type TEXT NOT NULL,
	appointment_id UUID,
	payload JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(context.Background(), schema); err != nil {
		log.Fatalf("create schema: %v", err)
	}
	log.Println("schema ready")

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedPractitioners(context.Background(), pool, 5); err != nil {
		log.Fatalf("seed practitioners: %v", err)
	}

	log.Println("seed complete")
}

func seedPractitioners(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d practitioners", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.Name()
		slug := slugify(name)
		email := gofakeit.Email()

		_, err := tx.Exec(ctx, `
			INSERT INTO practitioners (id, slug, name, email, clinic_email)
			VALUES ($1, $2, $3, $4, $4)
			ON CONFLICT (slug) DO NOTHING
		`, id, slug, name, email)
		if err != nil {
			return err
		}

		log.Printf("practitioner %s (%s)", name, slug)
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("practitioners seeded")
	return nil
}

func slugify(name string) string {
	s := strings.ToLower(name)
	s = strings.ReplaceAll(s, ".", "")
	return strings.ReplaceAll(strings.TrimSpace(s), " ", "-")
}
