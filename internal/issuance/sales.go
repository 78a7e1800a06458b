package issuance

import (
	"context"

	"github.com/safar/dealership/internal/apperr"
	"github.com/safar/dealership/internal/document"
	"github.com/safar/dealership/internal/models"
)

type SaleStore interface {
	GetSaleRecord(ctx context.Context, id int64) (*models.SaleRecord, error)
}

// SaleService projects closed sales. The sheet only reads the record, so it
// does not change when the buyer or vehicle is edited later.
type SaleService struct {
	store     SaleStore
	projector *document.Projector
}

func NewSaleService(store SaleStore, projector *document.Projector) *SaleService {
	return &SaleService{store: store, projector: projector}
}

func (s *SaleService) Sheet(ctx context.Context, id int64) (document.SaleSheet, error) {
	rec, err := s.store.GetSaleRecord(ctx, id)
	if err != nil {
		return document.SaleSheet{}, apperr.Persistence("load sale record", err)
	}
	return document.SheetFor(*rec), nil
}

// Render regenerates the sale sheet from the stored record.
func (s *SaleService) Render(ctx context.Context, id int64) (*document.Artifact, error) {
	sheet, err := s.Sheet(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.projector.RenderSale(ctx, sheet)
}
