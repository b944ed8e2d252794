// Package inventory implements warehouses, categories, suppliers, items, purchase orders
// and invoices on top of a Store.
package inventory

import (
	"context"
	"errors"
	"strings"
	"time"

	"tt360.co/crm/internal/errs"
	"tt360.co/crm/internal/query"
)

// DefaultTaxRateBasisPoints is 19%.
const DefaultTaxRateBasisPoints = 1900

// Store persists inventory records. Get*/Update*/Delete* report errs.ErrNotFound for
// unknown ids; unique constraint conflicts surface as errs.ErrDuplicate.
type Store interface {
	CreateWarehouse(ctx context.Context, w *Warehouse) error
	GetWarehouse(ctx context.Context, id int64) (*Warehouse, error)
	ListWarehouses(ctx context.Context, page query.Page) ([]Warehouse, error)
	UpdateWarehouse(ctx context.Context, w *Warehouse) error
	DeleteWarehouse(ctx context.Context, id int64) error
	SummarizeWarehouse(ctx context.Context, id int64) (WarehouseSummary, error)

	CreateCategory(ctx context.Context, c *Category) error
	GetCategory(ctx context.Context, id int64) (*Category, error)
	ListCategories(ctx context.Context, page query.Page) ([]Category, error)
	UpdateCategory(ctx context.Context, c *Category) error
	DeleteCategory(ctx context.Context, id int64) error
	CategoryNameExists(ctx context.Context, name string, exceptID int64) (bool, error)

	CreateSupplier(ctx context.Context, s *Supplier) error
	GetSupplier(ctx context.Context, id int64) (*Supplier, error)
	ListSuppliers(ctx context.Context, page query.Page) ([]Supplier, error)
	UpdateSupplier(ctx context.Context, s *Supplier) error
	DeleteSupplier(ctx context.Context, id int64) error
	SupplierDocumentExists(ctx context.Context, document string, exceptID int64) (bool, error)

	CreateItem(ctx context.Context, it *Item) error
	GetItem(ctx context.Context, id int64) (*Item, error)
	ListItems(ctx context.Context, f ItemFilter, page query.Page) ([]Item, error)
	CountItems(ctx context.Context, f ItemFilter) (int64, error)
	UpdateItem(ctx context.Context, it *Item) error
	DeleteItem(ctx context.Context, id int64) error
	SKUExists(ctx context.Context, sku string, exceptID int64) (bool, error)

	CreateOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, id int64) (*Order, error)
	ListOrders(ctx context.Context, f OrderFilter, page query.Page) ([]Order, error)
	CountOrders(ctx context.Context, f OrderFilter) (int64, error)
	SetOrderStatus(ctx context.Context, id int64, from, to OrderStatus) error
	DeleteOrder(ctx context.Context, id int64) error

	CreateInvoice(ctx context.Context, inv *Invoice) error
	GetInvoice(ctx context.Context, id int64) (*Invoice, error)
	ListInvoices(ctx context.Context, page query.Page) ([]Invoice, error)
	DeleteInvoice(ctx context.Context, id int64) error
	InvoiceExistsForOrder(ctx context.Context, orderID int64) (bool, error)
}

// Service applies the inventory business rules.
type Service struct {
	store   Store
	taxRate int64
	now     func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithTaxRate sets the invoice tax rate in basis points.
func WithTaxRate(basisPoints int64) Option {
	return func(s *Service) {
		if basisPoints >= 0 {
			s.taxRate = basisPoints
		}
	}
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("inventory store is required")
	}
	s := &Service{store: store, taxRate: DefaultTaxRateBasisPoints, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Warehouses

func (s *Service) CreateWarehouse(ctx context.Context, w Warehouse) (*Warehouse, error) {
	if err := normalizeWarehouse(&w); err != nil {
		return nil, err
	}
	if err := s.store.CreateWarehouse(ctx, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *Service) GetWarehouse(ctx context.Context, id int64) (*Warehouse, error) {
	return s.store.GetWarehouse(ctx, id)
}

func (s *Service) ListWarehouses(ctx context.Context, page query.Page) ([]Warehouse, error) {
	return s.store.ListWarehouses(ctx, page.Normalize())
}

func (s *Service) UpdateWarehouse(ctx context.Context, id int64, w Warehouse) (*Warehouse, error) {
	if err := normalizeWarehouse(&w); err != nil {
		return nil, err
	}
	w.ID = id
	if err := s.store.UpdateWarehouse(ctx, &w); err != nil {
		return nil, err
	}
	return s.store.GetWarehouse(ctx, id)
}

func (s *Service) DeleteWarehouse(ctx context.Context, id int64) error {
	return s.store.DeleteWarehouse(ctx, id)
}

func (s *Service) WarehouseSummary(ctx context.Context, id int64) (WarehouseSummary, error) {
	if _, err := s.store.GetWarehouse(ctx, id); err != nil {
		return WarehouseSummary{}, err
	}
	return s.store.SummarizeWarehouse(ctx, id)
}

func normalizeWarehouse(w *Warehouse) error {
	w.Name = strings.TrimSpace(w.Name)
	w.Location = strings.TrimSpace(w.Location)
	var fields []string
	if w.Name == "" {
		fields = append(fields, "nombre: must not be blank")
	}
	if w.Capacity < 0 {
		fields = append(fields, "capacidad: must be zero or positive")
	}
	if len(fields) > 0 {
		return errs.Validation(fields...)
	}
	return nil
}

// Categories

func (s *Service) CreateCategory(ctx context.Context, c Category) (*Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Description = strings.TrimSpace(c.Description)
	if c.Name == "" {
		return nil, errs.Validation("nombre: must not be blank")
	}
	if err := s.uniqueCategory(ctx, c.Name, 0); err != nil {
		return nil, err
	}
	if err := s.store.CreateCategory(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Service) GetCategory(ctx context.Context, id int64) (*Category, error) {
	return s.store.GetCategory(ctx, id)
}

func (s *Service) ListCategories(ctx context.Context, page query.Page) ([]Category, error) {
	return s.store.ListCategories(ctx, page.Normalize())
}

func (s *Service) UpdateCategory(ctx context.Context, id int64, c Category) (*Category, error) {
	c.ID = id
	c.Name = strings.TrimSpace(c.Name)
	c.Description = strings.TrimSpace(c.Description)
	if c.Name == "" {
		return nil, errs.Validation("nombre: must not be blank")
	}
	if _, err := s.store.GetCategory(ctx, id); err != nil {
		return nil, err
	}
	if err := s.uniqueCategory(ctx, c.Name, id); err != nil {
		return nil, err
	}
	if err := s.store.UpdateCategory(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	return s.store.DeleteCategory(ctx, id)
}

func (s *Service) uniqueCategory(ctx context.Context, name string, exceptID int64) error {
	exists, err := s.store.CategoryNameExists(ctx, name, exceptID)
	if err != nil {
		return err
	}
	if exists {
		return errs.Duplicate("category %q already exists", name)
	}
	return nil
}

// Suppliers

func (s *Service) CreateSupplier(ctx context.Context, sup Supplier) (*Supplier, error) {
	if err := normalizeSupplier(&sup); err != nil {
		return nil, err
	}
	if err := s.uniqueSupplier(ctx, sup.Document, 0); err != nil {
		return nil, err
	}
	if err := s.store.CreateSupplier(ctx, &sup); err != nil {
		return nil, err
	}
	return &sup, nil
}

func (s *Service) GetSupplier(ctx context.Context, id int64) (*Supplier, error) {
	return s.store.GetSupplier(ctx, id)
}

func (s *Service) ListSuppliers(ctx context.Context, page query.Page) ([]Supplier, error) {
	return s.store.ListSuppliers(ctx, page.Normalize())
}

func (s *Service) UpdateSupplier(ctx context.Context, id int64, sup Supplier) (*Supplier, error) {
	if err := normalizeSupplier(&sup); err != nil {
		return nil, err
	}
	sup.ID = id
	if _, err := s.store.GetSupplier(ctx, id); err != nil {
		return nil, err
	}
	if err := s.uniqueSupplier(ctx, sup.Document, id); err != nil {
		return nil, err
	}
	if err := s.store.UpdateSupplier(ctx, &sup); err != nil {
		return nil, err
	}
	return &sup, nil
}

func (s *Service) DeleteSupplier(ctx context.Context, id int64) error {
	return s.store.DeleteSupplier(ctx, id)
}

func (s *Service) uniqueSupplier(ctx context.Context, document string, exceptID int64) error {
	exists, err := s.store.SupplierDocumentExists(ctx, document, exceptID)
	if err != nil {
		return err
	}
	if exists {
		return errs.Duplicate("supplier with documento %q already exists", document)
	}
	return nil
}

func normalizeSupplier(sup *Supplier) error {
	sup.Name = strings.TrimSpace(sup.Name)
	sup.Document = strings.TrimSpace(sup.Document)
	sup.Email = strings.ToLower(strings.TrimSpace(sup.Email))
	sup.Phone = strings.TrimSpace(sup.Phone)
	sup.Address = strings.TrimSpace(sup.Address)
	var fields []string
	if sup.Name == "" {
		fields = append(fields, "nombre: must not be blank")
	}
	if sup.Document == "" {
		fields = append(fields, "documento: must not be blank")
	}
	if len(fields) > 0 {
		return errs.Validation(fields...)
	}
	return nil
}

// Items

func (s *Service) CreateItem(ctx context.Context, it Item) (*Item, error) {
	if err := normalizeItem(&it); err != nil {
		return nil, err
	}
	if err := s.uniqueSKU(ctx, it.SKU, 0); err != nil {
		return nil, err
	}
	if err := s.checkItemRefs(ctx, &it); err != nil {
		return nil, err
	}
	if err := s.store.CreateItem(ctx, &it); err != nil {
		return nil, err
	}
	return &it, nil
}

func (s *Service) GetItem(ctx context.Context, id int64) (*Item, error) {
	return s.store.GetItem(ctx, id)
}

func (s *Service) ListItems(ctx context.Context, f ItemFilter, page query.Page) ([]Item, error) {
	f.Name = strings.TrimSpace(f.Name)
	return s.store.ListItems(ctx, f, page.Normalize())
}

func (s *Service) CountItems(ctx context.Context, f ItemFilter) (int64, error) {
	f.Name = strings.TrimSpace(f.Name)
	return s.store.CountItems(ctx, f)
}

func (s *Service) UpdateItem(ctx context.Context, id int64, it Item) (*Item, error) {
	if err := normalizeItem(&it); err != nil {
		return nil, err
	}
	it.ID = id
	if _, err := s.store.GetItem(ctx, id); err != nil {
		return nil, err
	}
	if err := s.uniqueSKU(ctx, it.SKU, id); err != nil {
		return nil, err
	}
	if err := s.checkItemRefs(ctx, &it); err != nil {
		return nil, err
	}
	if err := s.store.UpdateItem(ctx, &it); err != nil {
		return nil, err
	}
	return s.store.GetItem(ctx, id)
}

func (s *Service) DeleteItem(ctx context.Context, id int64) error {
	return s.store.DeleteItem(ctx, id)
}

func (s *Service) uniqueSKU(ctx context.Context, sku string, exceptID int64) error {
	exists, err := s.store.SKUExists(ctx, sku, exceptID)
	if err != nil {
		return err
	}
	if exists {
		return errs.Duplicate("item with sku %q already exists", sku)
	}
	return nil
}

func (s *Service) checkItemRefs(ctx context.Context, it *Item) error {
	if _, err := s.store.GetCategory(ctx, it.CategoryID); err != nil {
		return err
	}
	if _, err := s.store.GetWarehouse(ctx, it.WarehouseID); err != nil {
		return err
	}
	if it.SupplierID != nil {
		if _, err := s.store.GetSupplier(ctx, *it.SupplierID); err != nil {
			return err
		}
	}
	return nil
}

func normalizeItem(it *Item) error {
	it.SKU = strings.ToUpper(strings.TrimSpace(it.SKU))
	it.Name = strings.TrimSpace(it.Name)
	it.Description = strings.TrimSpace(it.Description)
	var fields []string
	if it.SKU == "" {
		fields = append(fields, "sku: must not be blank")
	}
	if it.Name == "" {
		fields = append(fields, "nombre: must not be blank")
	}
	if it.Price < 0 {
		fields = append(fields, "precio: must be zero or positive")
	}
	if it.Stock < 0 {
		fields = append(fields, "stock: must be zero or positive")
	}
	if len(fields) > 0 {
		return errs.Validation(fields...)
	}
	return nil
}
