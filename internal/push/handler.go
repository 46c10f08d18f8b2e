package push

import "net/http"

// TenantResolver returns the tenant id authenticated for r, or "" if none
// could be resolved. The caller of ServeHTTP supplies it (cmd/waitingroomd
// looks up the X-Tenant-Key header); push only consumes the result.
type TenantResolver func(r *http.Request) string

// ServeHTTP upgrades r to a websocket connection and registers a Client
// scoped to the resolver's tenant, directly adapted from the teacher's
// handleWebSocket: upgrade, register, then a blocking read loop on the
// handler's goroutine that unregisters the client on any read error or
// close.
func (h *Hub) ServeHTTP(resolver TenantResolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := resolver(r)

		conn, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		c := h.Register(conn, tenantID)
		if c == nil {
			return
		}

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if err := h.HandleClientMessage(c, data); err != nil {
				break
			}
		}
		h.Unregister(c)
	}
}
