// Package httpcalc is a small arithmetic service core. Transports (see
// ginhttp and mqttjson) embed Server and feed it Context values; handlers
// never see the transport.
package httpcalc

// Registrar binds a handler to a (method, path) pair.
type Registrar interface {
	Register(method, path string, hdl *Handler)
}
