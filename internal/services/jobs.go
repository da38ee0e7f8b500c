package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"iter"
	"os"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"

	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/driver"
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/journal"
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/logger"
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/model"
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/pages"
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/pool"
)

// Agent prints jobs received from the server or the command line.
type Agent struct {
	Config   model.Config
	WSURL    string
	Pool     *pool.Pool
	Renderer pages.MarkupRenderer
	// Journal is optional.
	Journal *journal.Journal
	// DriverOptions are passed to every driver session.
	DriverOptions []driver.Option
}

// copyPrinter prints one copy of a job on session, adding the pages it
// hands to the printer to printed.
type copyPrinter func(ctx context.Context, session *driver.Session, printed *int) error

// Print prints every copy of job on printer profile, one session for all
// copies, and returns the number of pages printed.
func (a *Agent) Print(ctx context.Context, profile model.PrinterProfile, job model.PrintJob) (printed int, err error) {
	if job.Orientation != model.OrientationUndefined {
		profile.Orientation = job.Orientation
	}
	copies := job.CopyCount()

	if a.Journal != nil {
		if jerr := a.Journal.Start(ctx, job.ID, profile.Name, string(job.Format), copies); jerr != nil {
			logger.Warn("Failed to journal job", zap.String("job_id", job.ID), zap.Error(jerr))
		}
		defer func() {
			if jerr := a.Journal.Finish(context.WithoutCancel(ctx), job.ID, printed, err); jerr != nil {
				logger.Warn("Failed to journal job result", zap.String("job_id", job.ID), zap.Error(jerr))
			}
		}()
	}

	printCopy, cleanup, err := a.printerFor(job)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	session, err := driver.New(ctx, profile, a.Pool, a.DriverOptions...)
	if err != nil {
		return 0, err
	}
	defer func() {
		if derr := session.Disconnect(false); derr != nil {
			logger.Warn("Failed to disconnect printer", zap.String("printer", profile.Name), zap.Error(derr))
		}
	}()

	for c := range copies {
		logger.Info("Printing copy",
			zap.String("printer", profile.Name),
			zap.String("job_id", job.ID),
			zap.Int("copy", c+1),
			zap.Int("copies", copies))

		if err := printCopy(ctx, session, &printed); err != nil {
			return printed, err
		}
	}
	return printed, nil
}

func counted(seq iter.Seq2[image.Image, error], n *int) iter.Seq2[image.Image, error] {
	return func(yield func(image.Image, error) bool) {
		for page, err := range seq {
			if err == nil {
				*n++
			}
			if !yield(page, err) {
				return
			}
		}
	}
}

// countedDocument counts the pages rendered from a Document.
type countedDocument struct {
	pages.Document
	n *int
}

func (d countedDocument) RenderPage(ctx context.Context, index, width, height int) (image.Image, error) {
	img, err := d.Document.RenderPage(ctx, index, width, height)
	if err == nil {
		*d.n++
	}
	return img, err
}

// printerFor decodes the job payload. The returned cleanup must be called
// once all copies are printed.
func (a *Agent) printerFor(job model.PrintJob) (copyPrinter, func(), error) {
	noop := func() {}
	switch job.Format {
	case model.JobFormatHTML:
		html := job.Pages
		if job.Compressed != "" {
			decoded, err := pages.DecodeMarkupPayload(job.Compressed)
			if err != nil {
				return nil, nil, err
			}
			html = decoded
		}
		if len(html) == 0 {
			return nil, nil, fmt.Errorf("job %s has no pages", job.ID)
		}
		if a.Renderer == nil {
			return nil, nil, errors.New("HTML jobs need Chrome, which is not available")
		}
		return func(ctx context.Context, session *driver.Session, printed *int) error {
			return session.PrintPages(ctx, counted(pages.FromMarkup(ctx, a.Renderer, html, session.Profile()), printed))
		}, noop, nil

	case model.JobFormatPDF:
		data, err := base64.StdEncoding.DecodeString(job.Data)
		if err != nil {
			return nil, nil, fmt.Errorf("job %s: PDF data is not base64: %w", job.ID, err)
		}
		return pdfPrinter(data)

	case model.JobFormatImage:
		data, err := base64.StdEncoding.DecodeString(job.Data)
		if err != nil {
			return nil, nil, fmt.Errorf("job %s: image data is not base64: %w", job.ID, err)
		}
		img, err := pages.DecodeImage(bytes.NewReader(data))
		if err != nil {
			return nil, nil, err
		}
		return func(ctx context.Context, session *driver.Session, printed *int) error {
			return session.PrintPages(ctx, counted(pages.FromImages([]image.Image{img}, session.Profile()), printed))
		}, noop, nil

	default:
		return nil, nil, fmt.Errorf("unsupported job format %q", job.Format)
	}
}

// pdfPrinter writes data to a temporary file for poppler. Each copy opens it
// as a document printed at the printer's paper size.
func pdfPrinter(data []byte) (copyPrinter, func(), error) {
	f, err := os.CreateTemp("", "print-job-*.pdf")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	cleanup := func() {
		if err := os.Remove(f.Name()); err != nil {
			logger.Warn("Failed to delete tmp file", zap.String("file", f.Name()), zap.Error(err))
		}
	}
	_, werr := f.Write(data)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to write temp file: %w", werr)
	}

	return func(ctx context.Context, session *driver.Session, printed *int) error {
		doc, err := pages.OpenPDF(ctx, f.Name())
		if err != nil {
			return err
		}
		return session.PrintDocument(ctx, countedDocument{Document: doc, n: printed})
	}, cleanup, nil
}

// PrintFile prints a local PDF, PNG, JPEG or HTML file once.
func (a *Agent) PrintFile(ctx context.Context, profile model.PrinterProfile, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	id, err := gonanoid.New()
	if err != nil {
		return 0, err
	}
	job := model.PrintJob{ID: id, Copies: 1}

	switch {
	case bytes.HasPrefix(data, []byte("%PDF")):
		job.Format = model.JobFormatPDF
		job.Data = base64.StdEncoding.EncodeToString(data)
	case isImage(data):
		job.Format = model.JobFormatImage
		job.Data = base64.StdEncoding.EncodeToString(data)
	default:
		job.Format = model.JobFormatHTML
		job.Pages = []string{string(data)}
	}
	return a.Print(ctx, profile, job)
}

func isImage(data []byte) bool {
	return bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")) || bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF})
}
