package adminapi

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/healthz": {
            "get": {"summary": "Owner liveness", "responses": {"200": {"description": "ok"}}}
        },
        "/readyz": {
            "get": {
                "summary": "Pool readiness",
                "responses": {"200": {"description": "ready"}, "503": {"description": "starting"}}
            }
        },
        "/workers": {
            "get": {
                "summary": "List pool workers",
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.PoolStatus"}}}
            }
        },
        "/stop": {
            "post": {
                "summary": "Stop every worker of the pool",
                "produces": ["application/json"],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/types.StopPayload"}},
                    "503": {"description": "Unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/metrics": {
            "get": {"summary": "Prometheus metrics", "responses": {"200": {"description": "OK"}}}
        }
    },
    "definitions": {
        "types.ErrorResponse": {
            "type": "object",
            "properties": {"code": {"type": "integer", "example": 503}, "error": {"type": "string", "example": "pool not started"}}
        },
        "types.PoolStatus": {
            "type": "object",
            "properties": {
                "port": {"type": "integer", "example": 50000},
                "size": {"type": "integer", "example": 4},
                "stopping": {"type": "boolean"},
                "uptime_seconds": {"type": "integer", "example": 3600},
                "workers": {"type": "array", "items": {"$ref": "#/definitions/types.WorkerStatus"}}
            }
        },
        "types.StopPayload": {
            "type": "object",
            "properties": {"stopping": {"type": "boolean"}}
        },
        "types.WorkerStatus": {
            "type": "object",
            "properties": {
                "exit_error": {"type": "string"},
                "index": {"type": "integer", "example": 0},
                "pid": {"type": "integer", "example": 12345},
                "started_unix": {"type": "integer", "example": 1700000000},
                "state": {"type": "string", "example": "running"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "tinyserve admin API",
	Description:      "Pool owner endpoints: health, readiness, workers, stop and metrics.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
