package auth

import "strings"

// AdminRole is created by Bootstrap and owns every builtin permission.
const AdminRole = "ADMIN"

const (
	ResourceWarehouse = "BODEGA"
	ResourceCategory  = "CATEGORIA"
	ResourceSupplier  = "PROVEEDOR"
	ResourceItem      = "ITEM"
	ResourceOrder     = "PEDIDO"
	ResourceInvoice   = "FACTURA"
)

// Resources guarded by CREAR_/EDITAR_/ELIMINAR_ permissions.
var Resources = []string{ResourceWarehouse, ResourceCategory, ResourceSupplier, ResourceItem, ResourceOrder, ResourceInvoice}

var actionLabels = []struct {
	prefix string
	verb   string
}{
	{"CREAR_", "Crear"},
	{"EDITAR_", "Editar"},
	{"ELIMINAR_", "Eliminar"},
}

// Permission names for inventory resources.
func CreatePerm(resource string) string { return "CREAR_" + resource }
func EditPerm(resource string) string { return "EDITAR_" + resource }
func DeletePerm(resource string) string { return "ELIMINAR_" + resource }

// BuiltinPermissions enumerates the permission catalog seeded at bootstrap.
func BuiltinPermissions() []Permission {
	out := make([]Permission, 0, len(Resources)*len(actionLabels))
	for _, res := range Resources {
		for _, a := range actionLabels {
			out = append(out, Permission{
				Name:        a.prefix + res,
				Description: a.verb + " " + strings.ToLower(res),
			})
		}
	}
	return out
}
