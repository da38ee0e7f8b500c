package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/geometry"
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/logger"
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/model"
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/utils"
)

const (
	rawPrintPort  = 9100
	probeWorkers  = 50
	defaultDPI    = 203
	receiptWidth  = 7.2
	receiptHeight = 10.0
)

// --- Discovery Logic ---

// scanHosts probes every host on port and returns those that answered, in
// no particular order.
func scanHosts(ctx context.Context, hosts []string, port int, probe func(string, int) bool) []string {
	ipChan := make(chan string)
	foundChan := make(chan string, len(hosts))
	var wg sync.WaitGroup

	for i := 0; i < probeWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ip := range ipChan {
				if probe(ip, port) {
					foundChan <- ip
				}
			}
		}()
	}

feed:
	for _, h := range hosts {
		select {
		case ipChan <- h:
		case <-ctx.Done():
			break feed
		}
	}
	close(ipChan)
	wg.Wait()
	close(foundChan)

	var found []string
	for ip := range foundChan {
		found = append(found, ip)
	}
	return found
}

// NewReceiptProfile returns the default profile for an 80mm ESC/POS network
// printer found at ip.
func NewReceiptProfile(ip string, config model.Config) model.PrinterProfile {
	return model.PrinterProfile{
		Driver:       model.DriverEscPos,
		Transport:    model.TransportTCP,
		Address:      fmt.Sprintf("%s:%d", ip, rawPrintPort),
		DPI:          defaultDPI,
		Width:        receiptWidth,
		Height:       receiptHeight,
		Cut:          true,
		IsEnabled:    true,
		TenantID:     config.TenantID,
		RestaurantID: config.RestaurantID,
	}
}

// DiscoverPrinters scans the local /24 for raw print servers and asks on in
// which of them to add.
func DiscoverPrinters(ctx context.Context, config model.Config, in io.Reader) []model.PrinterProfile {
	localIP, err := utils.DetectLocalIP()
	if err != nil {
		logger.Error("Error detecting IP", zap.Error(err))
		return nil
	}
	parts := strings.Split(localIP, ".")
	subnet := strings.Join(parts[:3], ".")
	fmt.Printf("Scanning subnet: %s.0/24\n", subnet)

	hosts := make([]string, 0, 254)
	for i := 1; i <= 254; i++ {
		hosts = append(hosts, fmt.Sprintf("%s.%d", subnet, i))
	}
	found := scanHosts(ctx, hosts, rawPrintPort, utils.Probe)

	return choosePrinters(found, config, bufio.NewReader(in))
}

func choosePrinters(found []string, config model.Config, reader *bufio.Reader) []model.PrinterProfile {
	var newPrinters []model.PrinterProfile
	for _, ip := range found {
		fmt.Printf("Found printer at %s. Add this printer? (y/n): ", ip)
		ans, _ := reader.ReadString('\n')
		if strings.TrimSpace(strings.ToLower(ans)) != "y" {
			continue
		}
		p := NewReceiptProfile(ip, config)

		fmt.Print("  Name (e.g., Kitchen): ")
		p.Name, _ = reader.ReadString('\n')
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			p.Name = ip
		}

		fmt.Print("  Description (e.g., Thermal Printer): ")
		p.Description, _ = reader.ReadString('\n')
		p.Description = strings.TrimSpace(p.Description)

		newPrinters = append(newPrinters, p)
	}
	return newPrinters
}

// --- API Registration ---

type registration struct {
	model.PrinterProfile
	Capabilities model.Capabilities `json:"capabilities"`
}

// RegisterPrinterOnServer registers p with its capabilities and stores the
// agent key the server assigns.
func RegisterPrinterOnServer(ctx context.Context, p *model.PrinterProfile, apiKey string) error {
	apiURL := ctx.Value(model.ContextAPIURL).(string) + "/api/printers"
	jsonData, err := json.Marshal(registration{PrinterProfile: *p, Capabilities: geometry.Capabilities(*p)})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", apiKey)

	var response struct {
		Data struct {
			AgentKey string `json:"agent_key"`
		} `json:"data"`
	}
	if err := doJSON(req, &response); err != nil {
		return err
	}
	if response.Data.AgentKey == "" {
		return fmt.Errorf("no agent_key found in response")
	}
	p.AgentKey = response.Data.AgentKey
	return nil
}

// GetPrintersFromServer returns the printer profiles the server holds for
// this API key. Invalid profiles are skipped.
func GetPrintersFromServer(ctx context.Context, apiKey string) ([]model.PrinterProfile, error) {
	apiURL := ctx.Value(model.ContextAPIURL).(string) + "/api/printers"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", apiKey)

	var response struct {
		Data struct {
			Printers []json.RawMessage `json:"printers"`
		} `json:"data"`
	}
	if err := doJSON(req, &response); err != nil {
		return nil, err
	}

	var result []model.PrinterProfile
	for _, raw := range response.Data.Printers {
		var p model.PrinterProfile
		if err := json.Unmarshal(raw, &p); err != nil {
			logger.Warn("Skipping unreadable printer from server", zap.Error(err))
			continue
		}
		if err := p.Validate(); err != nil {
			logger.Warn("Skipping invalid printer from server", zap.String("printer", p.Name), zap.Error(err))
			continue
		}
		result = append(result, p)
	}
	return result, nil
}

func doJSON(req *http.Request, out any) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API Error %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
