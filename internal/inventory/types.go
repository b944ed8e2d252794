package inventory

import (
	"fmt"
	"math"
	"time"
)

// Warehouse is a Bodega.
type Warehouse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"nombre"`
	Location  string    `json:"ubicacion,omitempty"`
	Capacity  int64     `json:"capacidad"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// WarehouseSummary aggregates the items stored in a warehouse.
type WarehouseSummary struct {
	WarehouseID int64 `json:"bodegaId"`
	Items       int64 `json:"items"`
	Stock       int64 `json:"stockTotal"`
}

type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"nombre"`
	Description string `json:"descripcion,omitempty"`
}

// Supplier is a Proveedor. Document (tax id) is unique.
type Supplier struct {
	ID       int64  `json:"id"`
	Name     string `json:"nombre"`
	Document string `json:"documento"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"telefono,omitempty"`
	Address  string `json:"direccion,omitempty"`
}

// Item is a stocked product. Price is in minor currency units.
type Item struct {
	ID          int64     `json:"id"`
	SKU         string    `json:"sku"`
	Name        string    `json:"nombre"`
	Description string    `json:"descripcion,omitempty"`
	Price       int64     `json:"precio"`
	Stock       int64     `json:"stock"`
	CategoryID  int64     `json:"categoriaId"`
	SupplierID  *int64    `json:"proveedorId,omitempty"`
	WarehouseID int64     `json:"bodegaId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ItemFilter narrows item listings. Zero values do not filter.
type ItemFilter struct {
	Name        string
	CategoryID  *int64
	SupplierID  *int64
	WarehouseID *int64
	StockMax    *int64
}

type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDIENTE"
	StatusApproved  OrderStatus = "APROBADO"
	StatusReceived  OrderStatus = "RECIBIDO"
	StatusCancelled OrderStatus = "CANCELADO"
)

var transitions = map[OrderStatus][]OrderStatus{
	StatusPending:  {StatusApproved, StatusCancelled},
	StatusApproved: {StatusReceived, StatusCancelled},
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusReceived, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether an order in s may move to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Deletable orders never affected stock or billing.
func (s OrderStatus) Deletable() bool {
	return s == StatusPending || s == StatusCancelled
}

// Order is a Pedido to a supplier.
type Order struct {
	ID         int64       `json:"id"`
	SupplierID int64       `json:"proveedorId"`
	Status     OrderStatus `json:"estado"`
	Total      int64       `json:"total"`
	Notes      string      `json:"observaciones,omitempty"`
	Lines      []OrderLine `json:"detalles"`
	CreatedAt  time.Time   `json:"fecha"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// OrderLine is a PedidoDetalle.
type OrderLine struct {
	ID        int64 `json:"id"`
	ItemID    int64 `json:"itemId"`
	Quantity  int64 `json:"cantidad"`
	UnitPrice int64 `json:"precioUnitario"`
	Subtotal  int64 `json:"subtotal"`
}

type OrderFilter struct {
	Status     OrderStatus
	SupplierID *int64
}

// Invoice is a Factura issued for a received order.
type Invoice struct {
	ID                 int64     `json:"id"`
	Number             string    `json:"numero"`
	OrderID            int64     `json:"pedidoId"`
	Subtotal           int64     `json:"subtotal"`
	Tax                int64     `json:"impuesto"`
	Total              int64     `json:"total"`
	TaxRateBasisPoints int64     `json:"tasaImpuestoBp"`
	IssuedAt           time.Time `json:"fecha"`
}

// InvoiceNumber formats a sequence value as FAC-000123.
func InvoiceNumber(seq int64) string {
	return fmt.Sprintf("FAC-%06d", seq)
}

// TaxOf applies a basis-point rate to a non-negative amount, rounding half up.
// ok is false when the result does not fit in int64.
func TaxOf(amount, basisPoints int64) (tax int64, ok bool) {
	q, r := amount/10000, amount%10000
	whole, ok := mulAmount(q, basisPoints)
	if !ok {
		return 0, false
	}
	part, ok := mulAmount(r, basisPoints)
	if ok {
		part, ok = addAmount(part, 5000)
	}
	if !ok {
		return 0, false
	}
	return addAmount(whole, part/10000)
}

// mulAmount multiplies two non-negative amounts, reporting overflow.
func mulAmount(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > math.MaxInt64/b {
		return 0, false
	}
	return a * b, true
}

// addAmount adds two non-negative amounts, reporting overflow.
func addAmount(a, b int64) (int64, bool) {
	if a > math.MaxInt64-b {
		return 0, false
	}
	return a + b, true
}
