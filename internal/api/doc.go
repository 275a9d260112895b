// Package api exposes the proof retrieval endpoint over HTTP and maps proof
// service results onto status codes and response bodies.
package api
