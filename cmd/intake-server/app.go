package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/voiceintake/intake/internal/config"
	"github.com/voiceintake/intake/internal/domain/admin"
	"github.com/voiceintake/intake/internal/domain/export"
	"github.com/voiceintake/intake/internal/domain/intake"
	"github.com/voiceintake/intake/internal/domain/profile"
	"github.com/voiceintake/intake/internal/domain/voice"
	"github.com/voiceintake/intake/internal/platform/audio"
	"github.com/voiceintake/intake/internal/platform/auth"
	"github.com/voiceintake/intake/internal/platform/blobstore"
	"github.com/voiceintake/intake/internal/platform/db"
	"github.com/voiceintake/intake/internal/platform/middleware"
	"github.com/voiceintake/intake/internal/platform/reporting"
)

const tokenIssuer = "voice-intake"

// app holds the wired services shared by the server and the export commands.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	pool     *pgxpool.Pool
	intake   *intake.Service
	voice    *voice.Service
	admin    *admin.Service
	measures *reporting.Evaluator
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func poolOptions(cfg *config.Config) db.PoolOptions {
	return db.PoolOptions{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns}
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	pool, err := db.NewPool(ctx, poolOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	blobs, err := blobstore.NewLocalStore(cfg.RecordingsDir, middleware.ParseLimit(cfg.MaxUploadSize))
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("open recording store: %w", err)
	}
	if err := os.MkdirAll(cfg.ExportTmpDir, 0o750); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	authn, err := auth.NewAuthenticator(
		auth.Credentials{Username: cfg.AdminUsername, Password: cfg.AdminPassword},
		[]byte(cfg.JWTSecret), tokenIssuer, cfg.JWTTTL,
	)
	if err != nil {
		pool.Close()
		return nil, err
	}

	// Intake repositories
	patientRepo := intake.NewPatientRepo(pool)
	demographicsRepo := intake.NewDemographicsRepo(pool)
	historyRepo := intake.NewHealthHistoryRepo(pool)
	oralRepo := intake.NewOralCancerRepo(pool)
	throatRepo := intake.NewThroatCancerRepo(pool)
	vhiRepo := intake.NewVHIRepo(pool)
	grbasRepo := intake.NewGRBASRepo(pool)

	intakeSvc := intake.NewService(patientRepo, demographicsRepo, historyRepo, oralRepo, throatRepo, vhiRepo, grbasRepo)
	intakeSvc.SetTxBeginner(pool)

	// Voice
	recordingRepo := voice.NewRecordingRepo(pool)
	voiceSvc := voice.NewService(
		recordingRepo,
		voice.NewAssignmentRepo(pool),
		voice.NewProgressRepo(pool),
		voice.NewFeedbackRepo(pool),
		patientRepo,
		blobs,
		logger.With().Str("component", "voice").Logger(),
	)
	voiceSvc.SetTxBeginner(pool)

	// Profiles and exports
	aggregator := profile.NewAggregator(&profile.RepoSource{
		Patients:     patientRepo,
		Demographic:  demographicsRepo,
		Histories:    historyRepo,
		Oral:         oralRepo,
		Throat:       throatRepo,
		VHI:          vhiRepo,
		GRBAS:        grbasRepo,
		VoiceRecords: recordingRepo,
	}, logger.With().Str("component", "profile").Logger())

	transcoder := audio.NewFFmpeg(cfg.FFmpegPath, logger.With().Str("component", "ffmpeg").Logger())
	packager := export.NewPackager(blobs, transcoder, cfg.ExportTmpDir, logger)
	packager.SetDefaultSampleRate(cfg.DefaultSampleRate)

	measures := reporting.NewEvaluator(pool)

	adminSvc := admin.NewService(admin.Deps{
		Patients:          intakeSvc,
		Profiles:          aggregator,
		Recordings:        voiceSvc,
		Exporter:          packager,
		Measures:          measures,
		Auth:              authn,
		Transcoder:        transcoder,
		TmpRoot:           cfg.ExportTmpDir,
		DefaultSampleRate: cfg.DefaultSampleRate,
	}, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		pool:     pool,
		intake:   intakeSvc,
		voice:    voiceSvc,
		admin:    adminSvc,
		measures: measures,
	}, nil
}

func (a *app) Close() {
	a.pool.Close()
}
