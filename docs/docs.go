// Package docs is generated by swag from the handler annotations.
// Regenerate with: swag init -g cmd/server/main.go -o docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/healthz": {
            "get": {"tags": ["health"], "summary": "Health check", "responses": {"200": {"description": "OK"}}}
        },
        "/readyz": {
            "get": {"tags": ["health"], "summary": "Readiness check", "responses": {"200": {"description": "OK"}}}
        },
        "/api/catalog/search": {
            "get": {
                "tags": ["catalog"],
                "summary": "Search the catalog",
                "description": "Local matches plus provider matches; new provider matches are persisted with isExternal=true.",
                "parameters": [
                    {"type": "string", "description": "query, at least 2 characters", "name": "q", "in": "query", "required": true},
                    {"type": "string", "description": "genre contains", "name": "genre", "in": "query"},
                    {"type": "string", "description": "platform contains", "name": "platform", "in": "query"},
                    {"type": "string", "description": "developer contains", "name": "developer", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.apiResponse"}}}
            }
        },
        "/api/catalog/games": {
            "get": {
                "tags": ["catalog"],
                "summary": "List catalog entries",
                "parameters": [
                    {"type": "integer", "name": "limit", "in": "query"},
                    {"type": "integer", "name": "offset", "in": "query"},
                    {"type": "string", "name": "q", "in": "query"},
                    {"type": "string", "name": "genre", "in": "query"},
                    {"type": "string", "name": "platform", "in": "query"},
                    {"type": "boolean", "name": "include_pending", "in": "query"},
                    {"type": "string", "name": "order_by", "in": "query"},
                    {"type": "boolean", "name": "ascending", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.apiResponse"}}}
            }
        },
        "/api/catalog/games/{id}": {
            "get": {
                "tags": ["catalog"],
                "summary": "Get a catalog entry",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.apiResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.apiResponse"}}
                }
            }
        },
        "/api/catalog/sync": {
            "post": {
                "tags": ["catalog"],
                "summary": "Start a catalog sync run",
                "description": "Runs in the background; poll /api/catalog/sync-state for progress.",
                "parameters": [
                    {"type": "string", "description": "all|metadata|pricing", "name": "scope", "in": "query"},
                    {"type": "integer", "description": "max entries to enrich", "name": "limit", "in": "query"},
                    {"type": "integer", "description": "persist after this many mutations", "name": "checkpoint_every", "in": "query"}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/handler.apiResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handler.apiResponse"}}
                }
            }
        },
        "/api/catalog/sync-state": {
            "get": {"tags": ["catalog"], "summary": "List sync states", "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.apiResponse"}}}}
        },
        "/api/catalog/import": {
            "post": {
                "tags": ["catalog"],
                "summary": "Import games from the provider",
                "consumes": ["application/json"],
                "parameters": [{"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/service.ImportRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.apiResponse"}}}
            }
        },
        "/api/settings": {
            "get": {
                "tags": ["settings"],
                "summary": "List settings",
                "parameters": [{"type": "string", "description": "key prefix, e.g. feature.", "name": "prefix", "in": "query"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.apiResponse"}}}
            }
        },
        "/api/settings/{key}": {
            "get": {
                "tags": ["settings"],
                "summary": "Get a setting",
                "parameters": [{"type": "string", "name": "key", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.apiResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.apiResponse"}}
                }
            },
            "put": {
                "tags": ["settings"],
                "summary": "Update a setting",
                "description": "Keys under feature. only accept boolean values.",
                "consumes": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "key", "in": "path", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.putSettingRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.apiResponse"}}}
            }
        }
    },
    "definitions": {
        "handler.apiResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "integer"},
                "data": {},
                "kind": {"type": "string"},
                "message": {"type": "string"},
                "meta": {"type": "object", "additionalProperties": true}
            }
        },
        "handler.putSettingRequest": {
            "type": "object",
            "properties": {
                "description": {"type": "string"},
                "value": {}
            }
        },
        "service.ImportRequest": {
            "type": "object",
            "properties": {
                "externalIds": {"type": "array", "items": {"type": "string"}},
                "query": {"type": "string"},
                "tags": {"type": "string"},
                "platforms": {"type": "string"},
                "limit": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "Game Catalog API",
	Description:      "Catalog search, browsing, sync and import.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
