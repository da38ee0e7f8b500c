package driver

import (
	"context"
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/escpos"
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/geometry"
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/logger"
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/raster"
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/segment"
)

// SliceHeight is the number of rows sent per ESC/POS raster command.
const SliceHeight = 128

type escPosPrinter struct {
	s *Session
}

func setupEscPos(_ context.Context, s *Session, o options) error {
	s.protocol = &escPosPrinter{s: s}
	s.settle = o.settleDelay
	return s.write(escpos.Reset())
}

func (p *escPosPrinter) printBitmap(ctx context.Context, page image.Image) error {
	s := p.s
	profile := s.profile
	mono := raster.Monochrome(page, profile.UsesDither())

	slices := 0
	for slice := range segment.Slices(mono, SliceHeight) {
		bm := raster.Pack(slice)
		if err := s.write(escpos.Raster(bm)); err != nil {
			return err
		}
		slices++
		logger.Debug("Wrote slice", zap.String("printer", profile.Name), zap.Int("slices", slices), zap.Int("height", bm.Height))
		if err := s.pacer.Delay(ctx, geometry.PixelsToCm(bm.Height, profile.DPI)); err != nil {
			return err
		}
	}

	if profile.Cut {
		if err := s.write(escpos.Cut()); err != nil {
			return err
		}
		if profile.CutDelay > 0 {
			if err := s.clock.Sleep(ctx, time.Duration(profile.CutDelay*float64(time.Second))); err != nil {
				return err
			}
			s.pacer.Reset()
		}
	}
	return s.write(escpos.Reset())
}

func (p *escPosPrinter) stop() {}
