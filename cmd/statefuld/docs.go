package main

// General API documentation for swaggo. Run `swag init -g cmd/statefuld/docs.go`
// to generate docs, then build with -tags=swagger to serve them.
//
// @title           statefuld API
// @version         1.0
// @description     HTTP API for stateful model inference with server-side sequences.
//
// @BasePath  /
//
// @schemes http
