package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"

	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/driver"
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/logger"
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/model"
)

const reconnectDelay = 5 * time.Second

// --- WebSocket Agent Logic ---

// RunAgent keeps a websocket session open for printer p until ctx is done,
// reconnecting after failures.
func (a *Agent) RunAgent(ctx context.Context, p model.PrinterProfile) {
	header := http.Header{}
	header.Add("X-Api-Key", a.Config.APIKey)

	logger.Info("Connecting to WebSocket", zap.String("printer", p.Name), zap.String("url", a.WSURL))

	for ctx.Err() == nil {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.WSURL, header)
		if err != nil {
			logger.Warn("Connection failed, retrying", zap.String("printer", p.Name), zap.Error(err), zap.Duration("retry_in", reconnectDelay))
			sleepCtx(ctx, reconnectDelay)
			continue
		}

		logger.Info("Connected", zap.String("printer", p.Name))
		stop := context.AfterFunc(ctx, func() { conn.Close() })
		a.handleConnection(ctx, conn, p)
		stop()

		conn.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Info("Disconnected, reconnecting", zap.String("printer", p.Name), zap.Duration("retry_in", reconnectDelay))
		sleepCtx(ctx, reconnectDelay)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (a *Agent) handleConnection(ctx context.Context, conn *websocket.Conn, p model.PrinterProfile) {
	regMsg := model.WSMessage{
		Type:     model.MessageTypeRegister,
		AgentKey: p.AgentKey,
	}
	if err := conn.WriteJSON(regMsg); err != nil {
		logger.Error("Failed to send register", zap.String("printer", p.Name), zap.Error(err))
		return
	}

	for {
		var msg model.WSMessage
		err := conn.ReadJSON(&msg)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("Read error", zap.String("printer", p.Name), zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case model.MessageTypeRegistered:
			logger.Info("Successfully registered with server", zap.String("printer", p.Name))

		case model.MessageTypePing:
			logger.Debug("Received ping, sending pong", zap.String("printer", p.Name))
			if err := conn.WriteJSON(model.WSMessage{Type: model.MessageTypePong, AgentKey: p.AgentKey}); err != nil {
				logger.Warn("Failed to send pong", zap.String("printer", p.Name), zap.Error(err))
				return
			}

		case model.MessageTypePrintJob:
			logger.Info("Received print job", zap.String("printer", p.Name), zap.String("job_id", msg.JobID))
			if err := a.handlePrintJob(ctx, conn, p, msg); err != nil {
				logger.Error("Failed to send job result", zap.String("printer", p.Name), zap.Error(err))
				return
			}

		case model.MessageTypeUnregister:
			logger.Info("Server requested unregister", zap.String("printer", p.Name))
			return

		default:
			logger.Warn("Unknown message type", zap.String("printer", p.Name), zap.String("type", string(msg.Type)))
		}
	}
}

// handlePrintJob prints the job carried by msg and answers printed or
// print_failed. Only a failure to answer is returned.
func (a *Agent) handlePrintJob(ctx context.Context, conn *websocket.Conn, p model.PrinterProfile, msg model.WSMessage) error {
	reply := model.WSMessage{Type: model.MessageTypePrinted, AgentKey: p.AgentKey, JobID: msg.JobID}

	var job model.PrintJob
	err := json.Unmarshal(msg.Job, &job)
	if err != nil {
		logger.Error("Error parsing job JSON", zap.String("printer", p.Name), zap.Error(err))
	} else {
		if job.ID == "" {
			job.ID = msg.JobID
		}
		if job.ID == "" {
			job.ID, _ = gonanoid.New()
		}
		reply.JobID = job.ID
		_, err = a.Print(ctx, p, job)
	}

	if err != nil {
		reply.Type = model.MessageTypePrintFailed
		reply.Error = err.Error()
		var ce *driver.ConfigurationError
		reply.Reconfigure = errors.As(err, &ce)
	} else {
		logger.Info("Job printed successfully", zap.String("printer", p.Name), zap.String("job_id", job.ID))
	}
	return conn.WriteJSON(reply)
}
