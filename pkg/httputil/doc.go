// Package httputil holds the JSON request and response helpers shared by
// the API handlers, plus the generic HTTP middleware (request ids, access
// logging, panic recovery, CORS, body limits).
//
// Handlers typically look like:
//
//	func (h *Handlers) getEntity(w http.ResponseWriter, r *http.Request) {
//		id, ok := httputil.ParsePathStringOrError(w, r, "id")
//		if !ok {
//			return
//		}
//		...
//		httputil.WriteSuccess(w, entity)
//	}
//
// Error bodies are always {"error": "..."}.
package httputil
