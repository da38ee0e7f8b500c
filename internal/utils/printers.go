package utils

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/logger"
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/model"
)

// --- Utility Functions ---

func DetectLocalIP() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
			return ipnet.IP.String(), nil
		}
	}
	return "", fmt.Errorf("no local IPv4 address found")
}

// Probe reports whether something accepts TCP connections on ip:port.
func Probe(ip string, port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(ip, fmt.Sprint(port)), 300*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// GetEnv returns the trimmed value of key, or fallback when it is unset or blank.
func GetEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// LoadOrSetupConfig reads the agent configuration, running the interactive
// first-run setup when the file does not exist yet.
func LoadOrSetupConfig(ctx context.Context) (model.Config, error) {
	var config model.Config
	configFile := ctx.Value(model.ContextConfigFile).(string)

	// Ensure config directory exists
	configDir := filepath.Dir(configFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return config, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(configFile); errors.Is(err, os.ErrNotExist) {
		config.AppVersion = ctx.Value(model.ContextAppVersion).(string)
		fmt.Println("--- Initial Setup ---")
		reader := bufio.NewReader(os.Stdin)

		config.ApiUrl = prompt(reader, "Enter API URL", ctx.Value(model.ContextAPIURL).(string))
		config.WsUrl = prompt(reader, "Enter WebSocket URL", ctx.Value(model.ContextWSURL).(string))
		config.APIKey = prompt(reader, "Enter Server API Key", "")

		fmt.Print("Enter Tenant ID: ")
		fmt.Fscanln(reader, &config.TenantID)

		fmt.Print("Enter Restaurant ID: ")
		fmt.Fscanln(reader, &config.RestaurantID)

		if err := SaveConfig(configFile, config); err != nil {
			return config, err
		}
		fmt.Println("Configuration saved.")
		return config, nil
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return config, err
	}
	if err := json.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("invalid config file %s: %w", configFile, err)
	}
	return config, nil
}

func SaveConfig(configFile string, config model.Config) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(configFile, data, 0600)
}

func prompt(reader *bufio.Reader, label, fallback string) string {
	if fallback != "" {
		fmt.Printf("%s (default: %s): ", label, fallback)
	} else {
		fmt.Printf("%s: ", label)
	}
	input, _ := reader.ReadString('\n')
	if input = strings.TrimSpace(input); input != "" {
		return input
	}
	return fallback
}

// LoadPrinters reads the printer profiles. Profiles that fail validation are
// skipped with a warning; a missing file yields no printers.
func LoadPrinters(ctx context.Context) ([]model.PrinterProfile, error) {
	printersFile := ctx.Value(model.ContextPrintersFile).(string)
	data, err := os.ReadFile(printersFile)
	if errors.Is(err, os.ErrNotExist) {
		return []model.PrinterProfile{}, nil
	}
	if err != nil {
		return nil, err
	}

	var all []model.PrinterProfile
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("invalid printers file %s: %w", printersFile, err)
	}

	printers := make([]model.PrinterProfile, 0, len(all))
	for _, p := range all {
		if err := p.Validate(); err != nil {
			logger.Warn("Skipping invalid printer profile", zap.String("printer", p.Name), zap.Error(err))
			continue
		}
		printers = append(printers, p)
	}
	return printers, nil
}

// FindPrinter returns the profile named name, or the default profile when
// name is empty.
func FindPrinter(printers []model.PrinterProfile, name string) (model.PrinterProfile, error) {
	for _, p := range printers {
		if (name == "" && p.IsDefault) || (name != "" && strings.EqualFold(p.Name, name)) {
			return p, nil
		}
	}
	if name == "" {
		return model.PrinterProfile{}, fmt.Errorf("no default printer configured")
	}
	return model.PrinterProfile{}, fmt.Errorf("no printer named %q", name)
}

// SavePrinters merges printers into the printers file. Existing entries with
// the same name are replaced, new ones appended.
func SavePrinters(printersFile string, printers []model.PrinterProfile) error {
	// Ensure config directory exists
	configDir := filepath.Dir(printersFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Load existing printers if file exists
	var existing []model.PrinterProfile
	if data, err := os.ReadFile(printersFile); err == nil {
		if err := json.Unmarshal(data, &existing); err != nil {
			return fmt.Errorf("failed to unmarshal existing printers: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read existing printers file: %w", err)
	}

	// Name is the unique identifier for printers
	index := make(map[string]int, len(existing))
	for i, p := range existing {
		index[p.Name] = i
	}
	for _, p := range printers {
		if i, ok := index[p.Name]; ok {
			existing[i] = p
			continue
		}
		index[p.Name] = len(existing)
		existing = append(existing, p)
	}

	data, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(printersFile, data, 0644)
}
