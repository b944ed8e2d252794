package inventory

import (
	"context"
	"fmt"
	"strings"

	"tt360.co/crm/internal/errs"
	"tt360.co/crm/internal/query"
)

// NewOrder is the input of CreateOrder.
type NewOrder struct {
	SupplierID int64
	Notes      string
	Lines      []NewOrderLine
}

type NewOrderLine struct {
	ItemID    int64
	Quantity  int64
	UnitPrice int64
}

// CreateOrder stores a PENDIENTE order. Line subtotals and the total are computed here,
// never taken from the client.
func (s *Service) CreateOrder(ctx context.Context, in NewOrder) (*Order, error) {
	var fields []string
	if in.SupplierID <= 0 {
		fields = append(fields, "proveedorId: must be positive")
	}
	if len(in.Lines) == 0 {
		fields = append(fields, "detalles: must contain at least one line")
	}
	for i, l := range in.Lines {
		if l.ItemID <= 0 {
			fields = append(fields, fmt.Sprintf("detalles[%d].itemId: must be positive", i))
		}
		if l.Quantity <= 0 {
			fields = append(fields, fmt.Sprintf("detalles[%d].cantidad: must be positive", i))
		}
		if l.UnitPrice < 0 {
			fields = append(fields, fmt.Sprintf("detalles[%d].precioUnitario: must be zero or positive", i))
		}
	}
	if len(fields) > 0 {
		return nil, errs.Validation(fields...)
	}

	if _, err := s.store.GetSupplier(ctx, in.SupplierID); err != nil {
		return nil, err
	}
	o := &Order{
		SupplierID: in.SupplierID,
		Status:     StatusPending,
		Notes:      strings.TrimSpace(in.Notes),
		Lines:      make([]OrderLine, 0, len(in.Lines)),
		CreatedAt:  s.now().UTC(),
	}
	for i, l := range in.Lines {
		sub, ok := mulAmount(l.Quantity, l.UnitPrice)
		if !ok {
			return nil, errs.Validation(fmt.Sprintf("detalles[%d]: amount too large", i))
		}
		if o.Total, ok = addAmount(o.Total, sub); !ok {
			return nil, errs.Validation(fmt.Sprintf("detalles[%d]: order total too large", i))
		}
		o.Lines = append(o.Lines, OrderLine{ItemID: l.ItemID, Quantity: l.Quantity, UnitPrice: l.UnitPrice, Subtotal: sub})
	}
	for _, l := range o.Lines {
		if _, err := s.store.GetItem(ctx, l.ItemID); err != nil {
			return nil, err
		}
	}
	o.UpdatedAt = o.CreatedAt
	if err := s.store.CreateOrder(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) GetOrder(ctx context.Context, id int64) (*Order, error) {
	return s.store.GetOrder(ctx, id)
}

func (s *Service) ListOrders(ctx context.Context, f OrderFilter, page query.Page) ([]Order, error) {
	if err := checkStatusFilter(&f); err != nil {
		return nil, err
	}
	return s.store.ListOrders(ctx, f, page.Normalize())
}

func (s *Service) CountOrders(ctx context.Context, f OrderFilter) (int64, error) {
	if err := checkStatusFilter(&f); err != nil {
		return 0, err
	}
	return s.store.CountOrders(ctx, f)
}

func checkStatusFilter(f *OrderFilter) error {
	f.Status = OrderStatus(strings.ToUpper(strings.TrimSpace(string(f.Status))))
	if f.Status != "" && !f.Status.Valid() {
		return errs.BadRequest("unknown estado %q", f.Status)
	}
	return nil
}

// ChangeOrderStatus moves an order along PENDIENTE -> APROBADO -> RECIBIDO, with
// CANCELADO reachable from the first two. Receiving adds the line quantities to stock.
func (s *Service) ChangeOrderStatus(ctx context.Context, id int64, next OrderStatus) (*Order, error) {
	next = OrderStatus(strings.ToUpper(strings.TrimSpace(string(next))))
	if !next.Valid() {
		return nil, errs.Validation("estado: must be one of PENDIENTE, APROBADO, RECIBIDO, CANCELADO")
	}
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.Status.CanTransition(next) {
		return nil, errs.BadRequest("order %d cannot move from %s to %s", id, o.Status, next)
	}
	if err := s.store.SetOrderStatus(ctx, id, o.Status, next); err != nil {
		return nil, err
	}
	return s.store.GetOrder(ctx, id)
}

func (s *Service) DeleteOrder(ctx context.Context, id int64) error {
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	if !o.Status.Deletable() {
		return errs.BadRequest("order %d is %s and cannot be deleted", id, o.Status)
	}
	return s.store.DeleteOrder(ctx, id)
}

// Invoices

// CreateInvoice bills a RECIBIDO order once.
func (s *Service) CreateInvoice(ctx context.Context, orderID int64) (*Invoice, error) {
	if orderID <= 0 {
		return nil, errs.Validation("pedidoId: must be positive")
	}
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusReceived {
		return nil, errs.BadRequest("order %d is %s, only %s orders can be invoiced", orderID, o.Status, StatusReceived)
	}
	exists, err := s.store.InvoiceExistsForOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errs.Duplicate("order %d is already invoiced", orderID)
	}
	tax, ok := TaxOf(o.Total, s.taxRate)
	var total int64
	if ok {
		total, ok = addAmount(o.Total, tax)
	}
	if !ok {
		return nil, errs.Validation("pedidoId: invoice total too large")
	}
	inv := &Invoice{
		OrderID:            orderID,
		Subtotal:           o.Total,
		Tax:                tax,
		Total:              total,
		TaxRateBasisPoints: s.taxRate,
		IssuedAt:           s.now().UTC(),
	}
	if err := s.store.CreateInvoice(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Service) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	return s.store.GetInvoice(ctx, id)
}

func (s *Service) ListInvoices(ctx context.Context, page query.Page) ([]Invoice, error) {
	return s.store.ListInvoices(ctx, page.Normalize())
}

func (s *Service) DeleteInvoice(ctx context.Context, id int64) error {
	return s.store.DeleteInvoice(ctx, id)
}
