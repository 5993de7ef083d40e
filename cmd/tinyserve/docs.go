package main

// General API documentation for swaggo. Regenerate internal/adminapi/docs.go
// with `swag init -g cmd/tinyserve/docs.go -o internal/adminapi`.
//
// @title           tinyserve admin API
// @version         1.0
// @description     Owner-side HTTP API of a tinyserve worker pool.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
