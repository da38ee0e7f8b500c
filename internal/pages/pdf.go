package pages

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/image/draw"
)

// Poppler command names, overridable for installs outside PATH.
var (
	PdfInfo  = "pdfinfo"
	PdfToPPM = "pdftoppm"
)

// PDF is a Document backed by the poppler command line tools.
type PDF struct {
	path  string
	pages int
}

// OpenPDF reads the page count of the PDF at path.
func OpenPDF(ctx context.Context, path string) (*PDF, error) {
	out, err := exec.CommandContext(ctx, PdfInfo, path).Output()
	if err != nil {
		return nil, fmt.Errorf("pdfinfo failed for %s: %w", path, err)
	}
	n, err := parsePageCount(out)
	if err != nil {
		return nil, fmt.Errorf("failed to read page count of %s: %w", path, err)
	}
	return &PDF{path: path, pages: n}, nil
}

func parsePageCount(info []byte) (int, error) {
	sc := bufio.NewScanner(bytes.NewReader(info))
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok || strings.TrimSpace(key) != "Pages" {
			continue
		}
		return strconv.Atoi(strings.TrimSpace(value))
	}
	return 0, fmt.Errorf("no Pages entry in pdfinfo output")
}

func (p *PDF) PageCount() int { return p.pages }

// RenderPage rasterizes the page scaled to width, keeping its aspect ratio,
// and places it at the top-left of a white width x height canvas.
func (p *PDF) RenderPage(ctx context.Context, index, width, height int) (image.Image, error) {
	if index < 0 || index >= p.pages {
		return nil, fmt.Errorf("page %d out of range (document has %d)", index+1, p.pages)
	}

	page := strconv.Itoa(index + 1)
	cmd := exec.CommandContext(ctx, PdfToPPM,
		"-f", page, "-l", page,
		"-png", "-singlefile",
		"-scale-to-x", strconv.Itoa(width), "-scale-to-y", "-1",
		p.path, "-")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w (output: %s)", err, strings.TrimSpace(stderr.String()))
	}

	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("failed to decode rendered page: %w", err)
	}
	return placeOnCanvas(img, width, height), nil
}

func (p *PDF) Close() error { return nil }

// placeOnCanvas draws img at the top-left of a white canvas, clipping
// whatever falls outside it.
func placeOnCanvas(img image.Image, width, height int) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(canvas, canvas.Bounds(), img, img.Bounds().Min, draw.Over)
	return canvas
}
