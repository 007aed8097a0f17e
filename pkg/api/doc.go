// Package api defines the SettleX PaymentService wire contract: message
// types, procedure paths, a JSON codec, and connect handler/client
// constructors.
//
// Messages are plain Go structs encoded as JSON, so any connect or gRPC-web
// client that speaks the Connect protocol with the "json" codec can call the
// service.
package api
