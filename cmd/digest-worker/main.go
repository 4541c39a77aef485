package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/medschedule/booking-engine/internal/appointment"
	"github.com/medschedule/booking-engine/internal/config"
	"github.com/medschedule/booking-engine/internal/db"
	"github.com/medschedule/booking-engine/internal/logging"
	"github.com/medschedule/booking-engine/internal/notify"
)

// digest-worker periodically emails each active practitioner a summary of
// the day's booked appointments.

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config load error: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logging.New(cfg.Env)
	if err != nil {
		os.Stderr.WriteString("logger init error: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("digest-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.DigestInterval))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	repo := appointment.NewPgRepository(pgPool)

	var notifier appointment.Notifier
	if emailer := notify.NewEmailNotifier(notify.EmailConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFrom,
		FromName:  cfg.SendGridName,
	}, log); emailer != nil {
		notifier = emailer
	} else {
		notifier = notify.NewStubNotifier(log)
	}

	ticker := time.NewTicker(cfg.DigestInterval)
	defer ticker.Stop()

	runDigest(rootCtx, repo, notifier, cfg.DefaultTimezone, log)

	for {
		select {
		case <-rootCtx.Done():
			log.Info("digest-worker stopped")
			return
		case <-ticker.C:
			runDigest(rootCtx, repo, notifier, cfg.DefaultTimezone, log)
		}
	}
}

func runDigest(ctx context.Context, repo appointment.Repository, notifier appointment.Notifier, fallbackTZ string, log *zap.Logger) {
	practitioners, err := repo.ListActivePractitioners(ctx)
	if err != nil {
		log.Error("list practitioners failed", zap.Error(err))
		return
	}

	for i := range practitioners {
		p := &practitioners[i]
		date := time.Now().In(p.Location(fallbackTZ)).Format("2006-01-02")

		booked, err := repo.ListBookedForDay(ctx, p.ID, date)
		if err != nil {
			log.Error("list booked failed",
				zap.String("practitioner_id", p.ID.String()),
				zap.Error(err))
			continue
		}
		if len(booked) == 0 {
			continue
		}

		subject := fmt.Sprintf("Schedule for %s: %d appointments", date, len(booked))
		if err := notifier.Notify(ctx, p, subject, digestBody(date, booked)); err != nil {
			log.Error("digest send failed",
				zap.String("practitioner_id", p.ID.String()),
				zap.Error(err))
			continue
		}

		log.Info("digest sent",
			zap.String("practitioner_id", p.ID.String()),
			zap.String("date", date),
			zap.Int("appointments", len(booked)))
	}
}

func digestBody(date string, booked []appointment.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Appointments for %s:\n\n", date)
	for _, s := range booked {
		fmt.Fprintf(&b, "%s - %s (%s)\n", s.Time, s.PatientName, s.PatientPhone)
	}
	return b.String()
}
