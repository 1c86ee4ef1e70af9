// Package httpapi exposes index documents over HTTP.
//
//	GET    /health
//	GET    /documents/{name}
//	PATCH  /documents/{name}               body: JSON object merged into the index
//	GET    /documents/{name}/entries/{key}
//	PUT    /documents/{name}/entries/{key} body: any JSON value
//	DELETE /documents/{name}/entries/{key}
//
// Errors are returned as {"error": "..."} with 400 for invalid input, 404 for missing entries,
// 409 when the stored document conflicts with the request, and 500 otherwise.
package httpapi
