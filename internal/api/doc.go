// Package api serves repack over HTTP: multipart uploads into the upload
// directory, conversions through the worker pool, single and bundled
// downloads from the output directory, plus format, status, history, health
// and metrics routes.
//
// Every route carries CORS headers and an X-Request-ID correlation id. When
// paths.api_token is set, all routes except /health require
// "Authorization: Bearer <token>".
package api
