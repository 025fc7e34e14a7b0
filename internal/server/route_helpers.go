package server

import "net/http"

// RouteHandler is a function type for HTTP handlers
type RouteHandler func(http.ResponseWriter, *http.Request)

// dispatch picks the handler for the request method; nil entries and
// unknown methods get a 405
func dispatch(w http.ResponseWriter, r *http.Request, routes map[string]RouteHandler) {
	handler := routes[r.Method]
	if handler == nil {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	handler(w, r)
}

// RouteResourceCollection handles the list + create pattern on a
// collection path: GET -> list, POST -> create
func RouteResourceCollection(w http.ResponseWriter, r *http.Request, list, create RouteHandler) {
	dispatch(w, r, map[string]RouteHandler{
		"GET":  list,
		"POST": create,
	})
}

// RouteResourceItem handles the get + update + delete pattern on an item
// path: GET -> get, PUT -> update, DELETE -> delete
func RouteResourceItem(w http.ResponseWriter, r *http.Request, get, update, delete RouteHandler) {
	dispatch(w, r, map[string]RouteHandler{
		"GET":    get,
		"PUT":    update,
		"DELETE": delete,
	})
}
