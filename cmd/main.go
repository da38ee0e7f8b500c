package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/journal"
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/logger"
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/model"
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/pages"
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/pool"
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/services"
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/utils"
)

const (
	appVersion = "1.1.0"
	// apiURL     = "https://api.perfect-menu.it"
	// wsURL      = "wss://ws.perfect-menu.it/agent"
	apiURL = "http://api.localhost"
	wsURL  = "ws://ws.localhost/agent"
)

const usage = `Usage:
  print-agent                        run the print agent for every registered printer
  print-agent print <printer> <file> print a PDF, PNG, JPEG or HTML file once
                                     (use "" as printer for the default one)`

// --- Main ---

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "Error loading .env file:", err)
	}

	if err := logger.Init(utils.GetEnv("PRINT_AGENT_LOG_LEVEL", "info")); err != nil {
		fmt.Fprintln(os.Stderr, "Logger error:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Error("Fatal error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run() error {
	configFile := utils.GetEnv("PRINT_AGENT_CONFIG_FILE", "config/config.json")
	printersFile := utils.GetEnv("PRINT_AGENT_PRINTERS_FILE", "config/printers.json")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = context.WithValue(ctx, model.ContextAppName, "Perfect Menu Raster Print")
	ctx = context.WithValue(ctx, model.ContextAppVersion, appVersion)
	ctx = context.WithValue(ctx, model.ContextAppAuthor, "Riboost Studio")
	ctx = context.WithValue(ctx, model.ContextConfigFile, configFile)
	ctx = context.WithValue(ctx, model.ContextPrintersFile, printersFile)
	ctx = context.WithValue(ctx, model.ContextAPIURL, utils.GetEnv("PRINT_AGENT_API_URL", apiURL))
	ctx = context.WithValue(ctx, model.ContextWSURL, utils.GetEnv("PRINT_AGENT_WS_URL", wsURL))

	args := os.Args[1:]
	if len(args) > 0 && (args[0] != "print" || len(args) != 3) {
		fmt.Println(usage)
		return errors.New("invalid arguments")
	}

	// 0. Check system requirements
	chromePath, err := utils.ValidateSystemRequirements(utils.GetEnv("CHROME_PATH", ""), pages.PdfInfo, pages.PdfToPPM)
	if err != nil {
		logger.Warn("HTML jobs are disabled", zap.Error(err))
	}
	ctx = context.WithValue(ctx, model.ContextChromePath, chromePath)

	// 1. Load Configuration
	config, err := utils.LoadOrSetupConfig(ctx)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if config.ApiUrl != "" {
		ctx = context.WithValue(ctx, model.ContextAPIURL, config.ApiUrl)
	}
	if config.WsUrl != "" {
		ctx = context.WithValue(ctx, model.ContextWSURL, config.WsUrl)
	}
	logger.Info("Configuration loaded",
		zap.String("app_version", config.AppVersion),
		zap.String("api_url", ctx.Value(model.ContextAPIURL).(string)),
		zap.String("ws_url", ctx.Value(model.ContextWSURL).(string)))

	jobs, err := journal.Open(utils.GetEnv("PRINT_AGENT_JOURNAL", "config/jobs.db"))
	if err != nil {
		return err
	}
	defer jobs.Close()

	connections := pool.New()
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := connections.Close(closeCtx); err != nil {
			logger.Warn("Failed to close printer connections", zap.Error(err))
		}
	}()

	agent := &services.Agent{
		Config:  config,
		WSURL:   ctx.Value(model.ContextWSURL).(string),
		Pool:    connections,
		Journal: jobs,
	}
	if chromePath != "" {
		renderer := pages.NewChromeRenderer(chromePath)
		defer renderer.Close()
		agent.Renderer = renderer
	}

	// 2. Load Printers
	printers, err := utils.LoadPrinters(ctx)
	if err != nil {
		logger.Warn("Error loading printers, starting fresh", zap.Error(err))
	}

	if len(args) == 3 {
		return printFile(ctx, agent, printers, args[1], args[2])
	}

	// 3. Fetch from server, then discovery
	if len(printers) == 0 {
		remote, err := services.GetPrintersFromServer(ctx, config.APIKey)
		if err != nil {
			logger.Warn("Could not fetch printers from server", zap.Error(err))
		}
		printers = remote
	}
	if len(printers) == 0 {
		fmt.Println("No printers configured. Starting discovery...")
		printers = services.DiscoverPrinters(ctx, config, os.Stdin)
		if err := utils.SavePrinters(printersFile, printers); err != nil {
			logger.Error("Failed to save printers", zap.Error(err))
		}
	}

	// 4. Register Printers (Get Agent Keys)
	dirty := false
	for i := range printers {
		if printers[i].AgentKey != "" {
			continue
		}
		logger.Info("Registering printer with server", zap.String("printer", printers[i].Name))
		if err := services.RegisterPrinterOnServer(ctx, &printers[i], config.APIKey); err != nil {
			logger.Error("Failed to register printer", zap.String("printer", printers[i].Name), zap.Error(err))
			continue
		}
		logger.Info("Printer registered", zap.String("printer", printers[i].Name), zap.String("agent_key", printers[i].AgentKey))
		dirty = true
	}
	if dirty {
		if err := utils.SavePrinters(printersFile, printers); err != nil {
			logger.Error("Failed to save printers", zap.Error(err))
		}
	}

	// 5. Start Agent for each Printer
	var wg sync.WaitGroup
	activePrinters := 0
	for _, p := range printers {
		if p.AgentKey == "" || !p.IsEnabled {
			continue
		}
		activePrinters++
		wg.Add(1)
		go func() {
			defer wg.Done()
			agent.RunAgent(ctx, p)
		}()
	}

	if activePrinters == 0 {
		fmt.Println("No enabled printers are registered with an Agent Key. Exiting.")
		return nil
	}

	logger.Info("System running", zap.Int("printers", activePrinters))
	<-ctx.Done()
	fmt.Println("\nShutting down...")
	wg.Wait()
	return nil
}

func printFile(ctx context.Context, agent *services.Agent, printers []model.PrinterProfile, name, path string) error {
	profile, err := utils.FindPrinter(printers, name)
	if err != nil {
		return err
	}
	printed, err := agent.PrintFile(ctx, profile, path)
	if err != nil {
		return err
	}
	logger.Info("File printed", zap.String("printer", profile.Name), zap.String("file", path), zap.Int("pages", printed))
	return nil
}
