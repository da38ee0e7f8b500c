package utils

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/model"
)

func validProfile(name string) model.PrinterProfile {
	return model.PrinterProfile{
		Name:      name,
		Driver:    model.DriverEscPos,
		Transport: model.TransportTCP,
		Address:   "192.168.1.50:9100",
		DPI:       203,
		Width:     7.2,
		Height:    10,
		IsEnabled: true,
	}
}

func TestSaveAndLoadPrinters(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config", "printers.json")

	kitchen := validProfile("Kitchen")
	bar := validProfile("Bar")
	if err := SavePrinters(file, []model.PrinterProfile{kitchen, bar}); err != nil {
		t.Fatalf("SavePrinters: %v", err)
	}

	kitchen.AgentKey = "agent-1"
	if err := SavePrinters(file, []model.PrinterProfile{kitchen}); err != nil {
		t.Fatalf("SavePrinters: %v", err)
	}

	ctx := context.WithValue(context.Background(), model.ContextPrintersFile, file)
	printers, err := LoadPrinters(ctx)
	if err != nil {
		t.Fatalf("LoadPrinters: %v", err)
	}
	if len(printers) != 2 {
		t.Fatalf("got %d printers, want 2", len(printers))
	}
	if printers[0].Name != "Kitchen" || printers[0].AgentKey != "agent-1" {
		t.Fatalf("existing printer should be updated in place: %+v", printers[0])
	}
}

func TestLoadPrintersSkipsInvalidProfiles(t *testing.T) {
	file := filepath.Join(t.TempDir(), "printers.json")
	body := `[
  {"name": "Kitchen", "driver": "esc_pos", "transport": "tcp_ip", "address": "10.0.0.2:9100", "dpi": 203, "width": 7.2, "height": 10},
  {"name": "Broken", "driver": "ZPL", "transport": "TCP_IP", "address": "10.0.0.3:9100", "dpi": 203, "width": 7.2, "height": 10},
  {"name": "Tiny", "driver": "CPCL", "transport": "BLUETOOTH", "address": "00:11:22:33:44:55", "dpi": 203, "width": 0.05, "height": 10}
]`
	if err := os.WriteFile(file, []byte(body), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	ctx := context.WithValue(context.Background(), model.ContextPrintersFile, file)
	printers, err := LoadPrinters(ctx)
	if err != nil {
		t.Fatalf("LoadPrinters: %v", err)
	}
	if len(printers) != 1 || printers[0].Name != "Kitchen" {
		t.Fatalf("expected only the valid profile, got %+v", printers)
	}
	if printers[0].Driver != model.DriverEscPos || printers[0].Transport != model.TransportTCP {
		t.Fatalf("enum names should be case-insensitive: %+v", printers[0])
	}
}

func TestLoadPrintersMissingFile(t *testing.T) {
	ctx := context.WithValue(context.Background(), model.ContextPrintersFile, filepath.Join(t.TempDir(), "none.json"))
	printers, err := LoadPrinters(ctx)
	if err != nil || len(printers) != 0 {
		t.Fatalf("got=%v err=%v, want no printers", printers, err)
	}
}

func TestFindPrinter(t *testing.T) {
	a, b := validProfile("Kitchen"), validProfile("Bar")
	b.IsDefault = true
	printers := []model.PrinterProfile{a, b}

	if p, err := FindPrinter(printers, "kitchen"); err != nil || p.Name != "Kitchen" {
		t.Fatalf("got=%v err=%v", p.Name, err)
	}
	if p, err := FindPrinter(printers, ""); err != nil || p.Name != "Bar" {
		t.Fatalf("default printer: got=%v err=%v", p.Name, err)
	}
	if _, err := FindPrinter(printers, "Office"); err == nil || !strings.Contains(err.Error(), "Office") {
		t.Fatalf("expected a not-found error, got %v", err)
	}
}

func TestLoadOrSetupConfigReadsExistingFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.json")
	if err := SaveConfig(file, model.Config{APIKey: "secret", TenantID: 4}); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	ctx := context.WithValue(context.Background(), model.ContextConfigFile, file)
	config, err := LoadOrSetupConfig(ctx)
	if err != nil {
		t.Fatalf("LoadOrSetupConfig: %v", err)
	}
	if config.APIKey != "secret" || config.TenantID != 4 {
		t.Fatalf("unexpected config: %+v", config)
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("PRINT_AGENT_TEST_VALUE", "  set ")
	if got := GetEnv("PRINT_AGENT_TEST_VALUE", "fallback"); got != "set" {
		t.Fatalf("got=%q want=%q", got, "set")
	}
	t.Setenv("PRINT_AGENT_TEST_VALUE", " ")
	if got := GetEnv("PRINT_AGENT_TEST_VALUE", "fallback"); got != "fallback" {
		t.Fatalf("got=%q want=%q", got, "fallback")
	}
}

func TestProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	if !Probe("127.0.0.1", port) {
		t.Fatalf("expected the listener to be found")
	}
}
