// Package httpmw holds the middleware the pack server wraps its router in:
// request-scoped logging, panic recovery, pack identity headers and trace
// correlation headers.
package httpmw
