package httpapi

import (
	"net/http"
	"strings"

	"tt360.co/crm/internal/auth"
	"tt360.co/crm/internal/obs"
)

// handlerFunc is an endpoint; a returned error is rendered by writeError.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// route declares an endpoint together with the capability it requires. A nil
// requirement makes the route public.
type route struct {
	method  string
	pattern string
	require auth.Requirement
	handle  handlerFunc
}

func (a *API) routes() []route {
	var (
		authenticated = auth.Authenticated()
		admin         = auth.HasRole(auth.AdminRole)
	)
	create := func(res string) auth.Requirement { return auth.HasPermission(auth.CreatePerm(res)) }
	edit := func(res string) auth.Requirement { return auth.HasPermission(auth.EditPerm(res)) }
	remove := func(res string) auth.Requirement { return auth.HasPermission(auth.DeletePerm(res)) }

	rs := []route{
		{"GET", "/healthz", nil, a.Healthz},
		{"GET", "/readyz", nil, a.Ready},
		{"GET", "/v1/info", nil, a.Info},
		{"GET", "/v3/api-docs", nil, a.OpenAPISpec},
		{"GET", "/swagger-ui/", nil, a.Docs},

		{"POST", "/api/auth/login", nil, a.login},
		{"POST", "/api/sesion/logout", authenticated, a.logout},
	}
	if a.rbac != nil {
		rs = append(rs,
			route{"GET", "/api/usuarios/me", authenticated, a.me},
			route{"GET", "/api/usuarios", admin, a.listUsers},
			route{"POST", "/api/usuarios", admin, a.createUser},
			route{"GET", "/api/usuarios/{id}", admin, a.getUser},
			route{"PUT", "/api/usuarios/{id}", admin, a.updateUser},
			route{"DELETE", "/api/usuarios/{id}", admin, a.deleteUser},

			route{"GET", "/api/roles", admin, a.listRoles},
			route{"POST", "/api/roles", admin, a.createRole},
			route{"GET", "/api/roles/{id}", admin, a.getRole},
			route{"PUT", "/api/roles/{id}", admin, a.updateRole},
			route{"DELETE", "/api/roles/{id}", admin, a.deleteRole},
			route{"PUT", "/api/roles/{id}/permisos", admin, a.setRolePermissions},

			route{"GET", "/api/permisos", admin, a.listPermissions},
			route{"POST", "/api/permisos", admin, a.createPermission},
			route{"DELETE", "/api/permisos/{id}", admin, a.deletePermission},
		)
	}
	if a.inventory != nil {
		rs = append(rs,
			route{"GET", "/api/bodegas", authenticated, a.listWarehouses},
			route{"POST", "/api/bodegas", create(auth.ResourceWarehouse), a.createWarehouse},
			route{"GET", "/api/bodegas/{id}", authenticated, a.getWarehouse},
			route{"GET", "/api/bodegas/{id}/resumen", authenticated, a.warehouseSummary},
			route{"PUT", "/api/bodegas/{id}", edit(auth.ResourceWarehouse), a.updateWarehouse},
			route{"DELETE", "/api/bodegas/{id}", remove(auth.ResourceWarehouse), a.deleteWarehouse},

			route{"GET", "/api/categorias", authenticated, a.listCategories},
			route{"POST", "/api/categorias", create(auth.ResourceCategory), a.createCategory},
			route{"GET", "/api/categorias/{id}", authenticated, a.getCategory},
			route{"PUT", "/api/categorias/{id}", edit(auth.ResourceCategory), a.updateCategory},
			route{"DELETE", "/api/categorias/{id}", remove(auth.ResourceCategory), a.deleteCategory},

			route{"GET", "/api/proveedores", authenticated, a.listSuppliers},
			route{"POST", "/api/proveedores", create(auth.ResourceSupplier), a.createSupplier},
			route{"GET", "/api/proveedores/{id}", authenticated, a.getSupplier},
			route{"PUT", "/api/proveedores/{id}", edit(auth.ResourceSupplier), a.updateSupplier},
			route{"DELETE", "/api/proveedores/{id}", remove(auth.ResourceSupplier), a.deleteSupplier},

			route{"GET", "/api/items", authenticated, a.listItems},
			route{"GET", "/api/items/count", authenticated, a.countItems},
			route{"POST", "/api/items", create(auth.ResourceItem), a.createItem},
			route{"GET", "/api/items/{id}", authenticated, a.getItem},
			route{"PUT", "/api/items/{id}", edit(auth.ResourceItem), a.updateItem},
			route{"DELETE", "/api/items/{id}", remove(auth.ResourceItem), a.deleteItem},

			route{"GET", "/api/pedidos", authenticated, a.listOrders},
			route{"GET", "/api/pedidos/count", authenticated, a.countOrders},
			route{"POST", "/api/pedidos", create(auth.ResourceOrder), a.createOrder},
			route{"GET", "/api/pedidos/{id}", authenticated, a.getOrder},
			route{"PATCH", "/api/pedidos/{id}/estado", edit(auth.ResourceOrder), a.changeOrderStatus},
			route{"DELETE", "/api/pedidos/{id}", remove(auth.ResourceOrder), a.deleteOrder},

			route{"GET", "/api/facturas", authenticated, a.listInvoices},
			route{"POST", "/api/facturas", create(auth.ResourceInvoice), a.createInvoice},
			route{"GET", "/api/facturas/{id}", authenticated, a.getInvoice},
			route{"DELETE", "/api/facturas/{id}", remove(auth.ResourceInvoice), a.deleteInvoice},
		)
	}
	return rs
}

func (a *API) register() {
	for _, rt := range a.routes() {
		a.mux.Handle(rt.method+" "+rt.pattern, a.dispatch(rt))
	}
	a.mux.Handle("GET /metrics", obs.Handler())
	a.mux.Handle("/", a.dispatch(route{require: nil, handle: a.fallback}))
}

// dispatch evaluates the route's requirement before the endpoint runs.
func (a *API) dispatch(rt route) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := auth.Authorize(r.Context(), rt.require); err != nil {
			writeError(w, r, err)
			return
		}
		if err := rt.handle(w, r); err != nil {
			writeError(w, r, err)
		}
	})
}

// fallback answers unmatched paths. Anonymous callers probing /api/** get 401, the same
// as for any protected endpoint.
func (a *API) fallback(w http.ResponseWriter, r *http.Request) error {
	if strings.HasPrefix(r.URL.Path, "/api/") && !strings.HasPrefix(r.URL.Path, "/api/auth/") {
		if err := auth.Authorize(r.Context(), auth.Authenticated()); err != nil {
			return err
		}
	}
	notFound(w, r)
	return nil
}
