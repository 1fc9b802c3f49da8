// Demo-data seeder: trainers with availability, service types, clients with
// packs, cancellation policies and a spread of appointments in every lifecycle
// state. Assumes the schema already exists.
package main

import (
	"context"
	"log"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"

	"github.com/trainwell/scheduling-engine/internal/config"
	"github.com/trainwell/scheduling-engine/internal/db"
	"github.com/trainwell/scheduling-engine/internal/model"
)

const (
	trainerCount          = 10
	clientsPerTrainer     = 20
	appointmentsPerClient = 3
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	_ = godotenv.Load()

	dsn, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.Open(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	seedCtx := context.Background()
	for i := 0; i < trainerCount; i++ {
		if err := seedTrainer(seedCtx, pool); err != nil {
			log.Fatalf("seed trainer: %v", err)
		}
	}

	log.Println("seed complete")
}

func seedTrainer(ctx context.Context, pool *db.Pool) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	trainerID := uuid.New()
	if _, err := tx.Exec(ctx, `
		INSERT INTO trainers (id, name, email, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
	`, trainerID, gofakeit.Name(), gofakeit.Email()); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO trainer_settings (trainer_id, auto_noshow_minutes, booking_lead_time_minutes)
		VALUES ($1, $2, $3)
	`, trainerID, gofakeit.Number(5, 20), gofakeit.Number(30, 120)); err != nil {
		return err
	}

	// Weekday availability, morning and afternoon blocks.
	for day := 1; day <= 5; day++ {
		for _, block := range [][2]int{{9 * 60, 12 * 60}, {13 * 60, 17 * 60}} {
			if _, err := tx.Exec(ctx, `
				INSERT INTO staff_availability (id, trainer_id, day_of_week, start_time, end_time, is_active)
				VALUES ($1, $2, $3, make_interval(mins => $4), make_interval(mins => $5), true)
			`, uuid.New(), trainerID, day, block[0], block[1]); err != nil {
				return err
			}
		}
	}

	services := []struct {
		name     string
		duration int
		buffer   int
		travel   int
		price    int64
	}{
		{"Personal Training 60", 60, 10, 0, 8000},
		{"Personal Training 30", 30, 5, 0, 4500},
		{"In-Home Session", 60, 10, 30, 12000},
	}
	serviceIDs := make([]uuid.UUID, 0, len(services))
	for _, s := range services {
		id := uuid.New()
		serviceIDs = append(serviceIDs, id)
		if _, err := tx.Exec(ctx, `
			INSERT INTO service_types
				(id, trainer_id, name, duration_minutes, buffer_after_minutes, travel_buffer_minutes,
				 cancel_window_minutes, base_price_cents, num_sessions_deducted)
			VALUES ($1, $2, $3, $4, $5, $6, 1440, $7, 1)
		`, id, trainerID, s.name, s.duration, s.buffer, s.travel, s.price); err != nil {
			return err
		}
	}

	// Global policy plus a stricter one for the in-home service.
	if _, err := tx.Exec(ctx, `
		INSERT INTO cancellation_policies (id, trainer_id, service_type_id, late_cancel_fee_cents, no_show_fee_cents, forfeit_session)
		VALUES ($1, $2, NULL, 1500, 2500, false), ($3, $2, $4, 3000, 5000, true)
	`, uuid.New(), trainerID, uuid.New(), serviceIDs[2]); err != nil {
		return err
	}

	for i := 0; i < clientsPerTrainer; i++ {
		if err := seedClient(ctx, tx, trainerID, serviceIDs); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func seedClient(ctx context.Context, tx pgx.Tx, trainerID uuid.UUID, serviceIDs []uuid.UUID) error {
	clientID := uuid.New()
	hasCard := gofakeit.Bool()

	var stripeCustomer, paymentMethod any
	if hasCard {
		stripeCustomer = "cus_" + gofakeit.LetterN(14)
		paymentMethod = "pm_" + gofakeit.LetterN(14)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO clients (id, trainer_id, name, email, stripe_customer_id, default_payment_method_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
	`, clientID, trainerID, gofakeit.Name(), gofakeit.Email(), stripeCustomer, paymentMethod); err != nil {
		return err
	}

	// Roughly half the clients hold a session pack.
	var clientServiceID any
	if gofakeit.Bool() {
		id := uuid.New()
		clientServiceID = id
		total := gofakeit.Number(5, 20)
		if _, err := tx.Exec(ctx, `
			INSERT INTO client_services (id, client_id, trainer_id, sessions_remaining, sessions_total, is_active, updated_at)
			VALUES ($1, $2, $3, $4, $5, true, now())
		`, id, clientID, trainerID, gofakeit.Number(1, total), total); err != nil {
			return err
		}
	}

	statuses := []string{
		model.StatusBooked, model.StatusConfirmed, model.StatusArrived,
		model.StatusCompleted, model.StatusNoShow, model.StatusEarlyCancel,
	}
	for i := 0; i < appointmentsPerClient; i++ {
		serviceID := serviceIDs[gofakeit.Number(0, len(serviceIDs)-1)]
		status := statuses[gofakeit.Number(0, len(statuses)-1)]

		// Spread starts over the past and next week, on the 15-minute grid.
		start := time.Now().UTC().Truncate(time.Hour).
			AddDate(0, 0, gofakeit.Number(-7, 7)).
			Add(time.Duration(gofakeit.Number(0, 3)) * 15 * time.Minute)
		if start.After(time.Now()) && (status == model.StatusCompleted || status == model.StatusNoShow) {
			status = model.StatusBooked
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO appointments
				(id, trainer_id, client_id, service_type_id, client_service_id,
				 start_at, end_at, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		`, uuid.New(), trainerID, clientID, serviceID, clientServiceID,
			start, start.Add(time.Hour), status); err != nil {
			return err
		}
	}
	return nil
}
