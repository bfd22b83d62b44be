package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/colony/internal/alert"
	"github.com/ShayCichocki/colony/internal/config"
	"github.com/ShayCichocki/colony/internal/errs"
	"github.com/ShayCichocki/colony/internal/executor"
	"github.com/ShayCichocki/colony/internal/logging"
	"github.com/ShayCichocki/colony/internal/mailbox"
	"github.com/ShayCichocki/colony/internal/memory"
	"github.com/ShayCichocki/colony/internal/orchestrator"
	"github.com/ShayCichocki/colony/internal/state"
	"github.com/ShayCichocki/colony/pkg/models"
)

// app holds everything a command needs. Fields are opened lazily by the
// helpers below and released by close.
type app struct {
	cfg     *config.Config
	domains []models.DomainConfig
	db      *state.DB
	logger  *logging.DebugLogger
	alerts  *alert.FileSink

	mem     *memory.Store
	mailbox *mailbox.Mailbox
	engine  *orchestrator.Engine
	events  *orchestrator.EventEmitter
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.Paths.DataDir = dataDir
	}
	return cfg, nil
}

// openApp loads config and opens the ledger.
func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	domains, err := config.LoadDomains(cfg.Paths.DomainsFile)
	if err != nil {
		return nil, reportConfigError(cfg, err)
	}
	db, err := state.OpenAndMigrate(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return &app{
		cfg:     cfg,
		domains: domains,
		db:      db,
		logger:  logging.ForDir(cfg.Paths.DataDir),
	}, nil
}

// withApp opens the ledger, runs fn, and closes everything.
func withApp(fn func(*app) error) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}

// startEngine wires the full pipeline on top of the ledger, restoring
// governance state from it. With events set the caller must drain
// a.events.Events().
func (a *app) startEngine(ctx context.Context, events bool) error {
	alerts, err := alert.NewFileSink(a.cfg.AlertsDir())
	if err != nil {
		return err
	}
	a.alerts = alerts

	a.mem, err = memory.NewStore(a.cfg.MemoryDBPath(), a.cfg.Memory.MinQuality)
	if err != nil {
		return fmt.Errorf("open memory: %w", err)
	}
	a.mailbox = mailbox.New(mailbox.DefaultQueueSize, a.logger)
	if events {
		a.events = orchestrator.NewEventEmitter(a.cfg.Policy.Events.BufferSize)
	}

	ecfg := orchestrator.Config{
		Domains:     a.domains,
		Policy:      &a.cfg.Policy,
		Memory:      a.mem,
		RecallLimit: a.cfg.Memory.RecallLimit,
		Ledger:      a.db,
		Alerts:      alerts,
		Transport:   a.mailbox,
		Events:      a.events,
		Logger:      a.logger,
	}
	switch a.cfg.Executor {
	case "anthropic":
		client, err := a.newClient()
		if err != nil {
			return reportConfigError(a.cfg, err)
		}
		ecfg.Executor = executor.NewWorker(client, a.logger)
		ecfg.Planner = executor.NewPlanner(client)
		ecfg.Classifier = executor.NewClassifier(client, a.domains)
		ecfg.Reviewer = executor.NewReviewer(client)
	default:
		ecfg.Executor = executor.NewEcho()
	}

	a.engine, err = orchestrator.New(ctx, ecfg)
	return err
}

// reportConfigError writes a config_invalid alert for configuration errors
// found before the engine exists and returns err unchanged.
func reportConfigError(cfg *config.Config, err error) error {
	if !errors.Is(err, errs.ErrConfigInvalid) {
		return err
	}
	sink, serr := alert.NewFileSink(cfg.AlertsDir())
	if serr != nil {
		return err
	}
	emitErr := sink.Emit(context.Background(), models.HumanAlert{
		EventID:   "config-invalid:" + err.Error(),
		Kind:      models.AlertConfigInvalid,
		Severity:  models.SeverityCritical,
		Message:   "Configuration error: " + err.Error(),
		NextSteps: []string{"colony config path", "fix the file and re-run"},
		Timestamp: time.Now().UTC(),
	})
	if emitErr != nil {
		fmt.Fprintf(os.Stderr, "warning: config alert not written: %v\n", emitErr)
	}
	return err
}

func (a *app) newClient() (*executor.Client, error) {
	ac := a.cfg.Anthropic
	cc := executor.ClientConfig{
		Model:         anthropic.Model(ac.Model),
		MaxTokens:     ac.MaxTokens,
		UseAWSBedrock: ac.UseBedrock,
		AWSRegion:     ac.AWSRegion,
		AWSProfile:    ac.AWSProfile,
	}
	if !ac.UseBedrock {
		key, err := config.GetAPIKey(a.cfg)
		if err != nil {
			return nil, err
		}
		cc.APIKey = key
	}
	client, err := executor.NewClient(cc)
	if err != nil {
		return nil, fmt.Errorf("create API client: %w", err)
	}
	return client, nil
}

func (a *app) close() {
	var errList []error
	if a.events != nil {
		a.events.Close()
	}
	if a.mem != nil {
		errList = append(errList, a.mem.Close())
	}
	if a.db != nil {
		errList = append(errList, a.db.Close())
	}
	if a.logger != nil {
		errList = append(errList, a.logger.Close())
	}
	if err := errors.Join(errList...); err != nil {
		fmt.Fprintf(os.Stderr, "warning: close: %v\n", err)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
