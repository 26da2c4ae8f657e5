package main

//go:generate swag init -g cmd/server/main.go -o docs

// @title           Game Catalog API
// @version         0.1.0
// @description     Catalog search, browsing, sync and import.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
