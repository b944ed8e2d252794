package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"tt360.co/crm/internal/audit"
	"tt360.co/crm/internal/inventory"
)

type warehouseRequest struct {
	Name     string `json:"nombre" validate:"required,max=100"`
	Location string `json:"ubicacion" validate:"max=255"`
	Capacity int64  `json:"capacidad" validate:"gte=0"`
}

func (req warehouseRequest) model() inventory.Warehouse {
	return inventory.Warehouse{Name: req.Name, Location: req.Location, Capacity: req.Capacity}
}

type categoryRequest struct {
	Name        string `json:"nombre" validate:"required,max=100"`
	Description string `json:"descripcion" validate:"max=255"`
}

func (req categoryRequest) model() inventory.Category {
	return inventory.Category{Name: req.Name, Description: req.Description}
}

type supplierRequest struct {
	Name     string `json:"nombre" validate:"required,max=150"`
	Document string `json:"documento" validate:"required,max=30"`
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"telefono" validate:"max=30"`
	Address  string `json:"direccion" validate:"max=255"`
}

func (req supplierRequest) model() inventory.Supplier {
	return inventory.Supplier{Name: req.Name, Document: req.Document, Email: req.Email, Phone: req.Phone, Address: req.Address}
}

type itemRequest struct {
	SKU         string `json:"sku" validate:"required,max=50"`
	Name        string `json:"nombre" validate:"required,max=150"`
	Description string `json:"descripcion" validate:"max=500"`
	Price       int64  `json:"precio" validate:"gte=0,max=1000000000000"`
	Stock       int64  `json:"stock" validate:"gte=0,max=1000000000"`
	CategoryID  int64  `json:"categoriaId" validate:"gt=0"`
	SupplierID  *int64 `json:"proveedorId" validate:"omitempty,gt=0"`
	WarehouseID int64  `json:"bodegaId" validate:"gt=0"`
}

func (req itemRequest) model() inventory.Item {
	return inventory.Item{
		SKU:         req.SKU,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
		CategoryID:  req.CategoryID,
		SupplierID:  req.SupplierID,
		WarehouseID: req.WarehouseID,
	}
}

type orderLineRequest struct {
	ItemID    int64 `json:"itemId" validate:"gt=0"`
	Quantity  int64 `json:"cantidad" validate:"gt=0,max=1000000"`
	UnitPrice int64 `json:"precioUnitario" validate:"gte=0,max=1000000000000"`
}

type orderRequest struct {
	SupplierID int64              `json:"proveedorId" validate:"gt=0"`
	Notes      string             `json:"observaciones" validate:"max=500"`
	Lines      []orderLineRequest `json:"detalles" validate:"required,min=1,dive"`
}

type orderStatusRequest struct {
	Status string `json:"estado" validate:"required"`
}

type invoiceRequest struct {
	OrderID int64 `json:"pedidoId" validate:"gt=0"`
}

type countResponse struct {
	Count int64 `json:"count"`
}

// Warehouses

func (a *API) listWarehouses(w http.ResponseWriter, r *http.Request) error {
	page, err := pageOf(r)
	if err != nil {
		return err
	}
	out, err := a.inventory.ListWarehouses(r.Context(), page)
	if err != nil {
		return err
	}
	return respondOK(w, out)
}

func (a *API) createWarehouse(w http.ResponseWriter, r *http.Request) error {
	var req warehouseRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	wh, err := a.inventory.CreateWarehouse(r.Context(), req.model())
	if err != nil {
		return err
	}
	audit.LogEvent(r.Context(), "inventory.warehouse.create", "bodega", wh.ID, zap.String("name", wh.Name))
	return created(w, location("/api/bodegas", wh.ID), wh)
}

func (a *API) getWarehouse(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	wh, err := a.inventory.GetWarehouse(r.Context(), id)
	if err != nil {
		return err
	}
	return respondOK(w, wh)
}

func (a *API) warehouseSummary(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	sum, err := a.inventory.WarehouseSummary(r.Context(), id)
	if err != nil {
		return err
	}
	return respondOK(w, sum)
}

func (a *API) updateWarehouse(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var req warehouseRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	wh, err := a.inventory.UpdateWarehouse(r.Context(), id, req.model())
	if err != nil {
		return err
	}
	audit.LogEvent(r.Context(), "inventory.warehouse.update", "bodega", id)
	return respondOK(w, wh)
}

func (a *API) deleteWarehouse(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	if err := a.inventory.DeleteWarehouse(r.Context(), id); err != nil {
		return err
	}
	audit.LogEvent(r.Context(), "inventory.warehouse.delete", "bodega", id)
	return noContent(w)
}

// Categories

func (a *API) listCategories(w http.ResponseWriter, r *http.Request) error {
	page, err := pageOf(r)
	if err != nil {
		return err
	}
	out, err := a.inventory.ListCategories(r.Context(), page)
	if err != nil {
		return err
	}
	return respondOK(w, out)
}

func (a *API) createCategory(w http.ResponseWriter, r *http.Request) error {
	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	c, err := a.inventory.CreateCategory(r.Context(), req.model())
	if err != nil {
		return err
	}
	audit.LogEvent(r.Context(), "inventory.category.create", "categoria", c.ID, zap.String("name", c.Name))
	return created(w, location("/api/categorias", c.ID), c)
}

func (a *API) getCategory(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	c, err := a.inventory.GetCategory(r.Context(), id)
	if err != nil {
		return err
	}
	return respondOK(w, c)
}

func (a *API) updateCategory(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	c, err := a.inventory.UpdateCategory(r.Context(), id, req.model())
	if err != nil {
		return err
	}
	audit.LogEvent(r.Context(), "inventory.category.update", "categoria", id)
	return respondOK(w, c)
}

func (a *API) deleteCategory(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	if err := a.inventory.DeleteCategory(r.Context(), id); err != nil {
		return err
	}
	audit.LogEvent(r.Context(), "inventory.category.delete", "categoria", id)
	return noContent(w)
}

// Suppliers

func (a *API) listSuppliers(w http.ResponseWriter, r *http.Request) error {
	page, err := pageOf(r)
	if err != nil {
		return err
	}
	out, err := a.inventory.ListSuppliers(r.Context(), page)
	if err != nil {
		return err
	}
	return respondOK(w, out)
}

func (a *API) createSupplier(w http.ResponseWriter, r *http.Request) error {
	var req supplierRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	sup, err := a.inventory.CreateSupplier(r.Context(), req.model())
	if err != nil {
		return err
	}
	audit.LogEvent(r.Context(), "inventory.supplier.create", "proveedor", sup.ID, zap.String("document", sup.Document))
	return created(w, location("/api/proveedores", sup.ID), sup)
}

func (a *API) getSupplier(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	sup, err := a.inventory.GetSupplier(r.Context(), id)
	if err != nil {
		return err
	}
	return respondOK(w, sup)
}

func (a *API) updateSupplier(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var req supplierRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	sup, err := a.inventory.UpdateSupplier(r.Context(), id, req.model())
	if err != nil {
		return err
	}
	audit.LogEvent(r.Context(), "inventory.supplier.update", "proveedor", id)
	return respondOK(w, sup)
}

func (a *API) deleteSupplier(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	if err := a.inventory.DeleteSupplier(r.Context(), id); err != nil {
		return err
	}
	audit.LogEvent(r.Context(), "inventory.supplier.delete", "proveedor", id)
	return noContent(w)
}

// Items

func itemFilterOf(r *http.Request) (inventory.ItemFilter, error) {
	var (
		f   = inventory.ItemFilter{Name: r.URL.Query().Get("nombre")}
		err error
	)
	if f.CategoryID, err = optionalInt(r, "categoriaId"); err != nil {
		return f, err
	}
	if f.SupplierID, err = optionalInt(r, "proveedorId"); err != nil {
		return f, err
	}
	if f.WarehouseID, err = optionalInt(r, "bodegaId"); err != nil {
		return f, err
	}
	if f.StockMax, err = optionalInt(r, "stockMax"); err != nil {
		return f, err
	}
	return f, nil
}

func (a *API) listItems(w http.ResponseWriter, r *http.Request) error {
	f, err := itemFilterOf(r)
	if err != nil {
		return err
	}
	page, err := pageOf(r)
	if err != nil {
		return err
	}
	out, err := a.inventory.ListItems(r.Context(), f, page)
	if err != nil {
		return err
	}
	return respondOK(w, out)
}

func (a *API) countItems(w http.ResponseWriter, r *http.Request) error {
	f, err := itemFilterOf(r)
	if err != nil {
		return err
	}
	n, err := a.inventory.CountItems(r.Context(), f)
	if err != nil {
		return err
	}
	return respondOK(w, countResponse{Count: n})
}

func (a *API) createItem(w http.ResponseWriter, r *http.Request) error {
	var req itemRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	it, err := a.inventory.CreateItem(r.Context(), req.model())
	if err != nil {
		return err
	}
	audit.LogEvent(r.Context(), "inventory.item.create", "item", it.ID, zap.String("sku", it.SKU))
	return created(w, location("/api/items", it.ID), it)
}

func (a *API) getItem(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	it, err := a.inventory.GetItem(r.Context(), id)
	if err != nil {
		return err
	}
	return respondOK(w, it)
}

func (a *API) updateItem(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var req itemRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	it, err := a.inventory.UpdateItem(r.Context(), id, req.model())
	if err != nil {
		return err
	}
	audit.LogEvent(r.Context(), "inventory.item.update", "item", id)
	return respondOK(w, it)
}

func (a *API) deleteItem(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	if err := a.inventory.DeleteItem(r.Context(), id); err != nil {
		return err
	}
	audit.LogEvent(r.Context(), "inventory.item.delete", "item", id)
	return noContent(w)
}

// Orders

func orderFilterOf(r *http.Request) (inventory.OrderFilter, error) {
	f := inventory.OrderFilter{Status: inventory.OrderStatus(r.URL.Query().Get("estado"))}
	supplier, err := optionalInt(r, "proveedorId")
	if err != nil {
		return f, err
	}
	f.SupplierID = supplier
	return f, nil
}

func (a *API) listOrders(w http.ResponseWriter, r *http.Request) error {
	f, err := orderFilterOf(r)
	if err != nil {
		return err
	}
	page, err := pageOf(r)
	if err != nil {
		return err
	}
	out, err := a.inventory.ListOrders(r.Context(), f, page)
	if err != nil {
		return err
	}
	return respondOK(w, out)
}

func (a *API) countOrders(w http.ResponseWriter, r *http.Request) error {
	f, err := orderFilterOf(r)
	if err != nil {
		return err
	}
	n, err := a.inventory.CountOrders(r.Context(), f)
	if err != nil {
		return err
	}
	return respondOK(w, countResponse{Count: n})
}

func (a *API) createOrder(w http.ResponseWriter, r *http.Request) error {
	var req orderRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	in := inventory.NewOrder{SupplierID: req.SupplierID, Notes: req.Notes}
	for _, l := range req.Lines {
		in.Lines = append(in.Lines, inventory.NewOrderLine{ItemID: l.ItemID, Quantity: l.Quantity, UnitPrice: l.UnitPrice})
	}
	o, err := a.inventory.CreateOrder(r.Context(), in)
	if err != nil {
		return err
	}
	audit.LogEvent(r.Context(), "inventory.order.create", "pedido", o.ID, zap.Int64("total", o.Total))
	return created(w, location("/api/pedidos", o.ID), o)
}

func (a *API) getOrder(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	o, err := a.inventory.GetOrder(r.Context(), id)
	if err != nil {
		return err
	}
	return respondOK(w, o)
}

func (a *API) changeOrderStatus(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var req orderStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	o, err := a.inventory.ChangeOrderStatus(r.Context(), id, inventory.OrderStatus(req.Status))
	if err != nil {
		return err
	}
	audit.LogEvent(r.Context(), "inventory.order.status", "pedido", id, zap.String("estado", string(o.Status)))
	return respondOK(w, o)
}

func (a *API) deleteOrder(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	if err := a.inventory.DeleteOrder(r.Context(), id); err != nil {
		return err
	}
	audit.LogEvent(r.Context(), "inventory.order.delete", "pedido", id)
	return noContent(w)
}

// Invoices

func (a *API) listInvoices(w http.ResponseWriter, r *http.Request) error {
	page, err := pageOf(r)
	if err != nil {
		return err
	}
	out, err := a.inventory.ListInvoices(r.Context(), page)
	if err != nil {
		return err
	}
	return respondOK(w, out)
}

func (a *API) createInvoice(w http.ResponseWriter, r *http.Request) error {
	var req invoiceRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	inv, err := a.inventory.CreateInvoice(r.Context(), req.OrderID)
	if err != nil {
		return err
	}
	audit.LogEvent(r.Context(), "inventory.invoice.create", "factura", inv.ID,
		zap.String("numero", inv.Number),
		zap.Int64("pedido_id", inv.OrderID),
	)
	return created(w, location("/api/facturas", inv.ID), inv)
}

func (a *API) getInvoice(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	inv, err := a.inventory.GetInvoice(r.Context(), id)
	if err != nil {
		return err
	}
	return respondOK(w, inv)
}

func (a *API) deleteInvoice(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	if err := a.inventory.DeleteInvoice(r.Context(), id); err != nil {
		return err
	}
	audit.LogEvent(r.Context(), "inventory.invoice.delete", "factura", id)
	return noContent(w)
}
