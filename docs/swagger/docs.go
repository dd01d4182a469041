// Package swagger registers the OpenAPI document served under /swagger/.
package swagger

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
        "/api/sync": {
            "post": {
                "description": "Runs a full or incremental sync, or a test sync when testMode is set, and waits for it to finish",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "summary": "Trigger a sync run",
                "parameters": [
                    {
                        "description": "Sync mode (default incremental)",
                        "name": "request",
                        "in": "body",
                        "schema": {"$ref": "#/definitions/api.syncRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.runResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.errorResponse"}},
                    "409": {"description": "A run is already in flight", "schema": {"$ref": "#/definitions/api.errorResponse"}}
                }
            }
        },
        "/api/sync/status": {
            "get": {
                "description": "Returns the most recent sync runs (newest first) and row counts per table",
                "produces": ["application/json"],
                "summary": "Sync history and store statistics",
                "parameters": [
                    {"type": "integer", "default": 20, "description": "Number of runs to return", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.syncStatusResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.errorResponse"}}
                }
            }
        },
        "/api/scheduler/start": {
            "post": {
                "produces": ["application/json"],
                "summary": "Start the scheduler",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/api.schedulerStatusResponse"}}}
            }
        },
        "/api/scheduler/stop": {
            "post": {
                "description": "Disarms future ticks. A run already in flight continues.",
                "produces": ["application/json"],
                "summary": "Stop the scheduler",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/api.schedulerStatusResponse"}}}
            }
        },
        "/api/scheduler/run": {
            "post": {
                "description": "Triggers one out-of-band incremental sync and waits for it",
                "produces": ["application/json"],
                "summary": "Run an incremental sync now",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.runResponse"}},
                    "409": {"description": "A run is already in flight", "schema": {"$ref": "#/definitions/api.errorResponse"}}
                }
            }
        },
        "/api/scheduler/status": {
            "get": {
                "produces": ["application/json"],
                "summary": "Scheduler status",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/api.schedulerStatusResponse"}}}
            }
        },
        "/healthz": {
            "get": {
                "description": "Reports the outcome of the most recent sync run",
                "produces": ["application/json"],
                "summary": "Health check",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/api.healthResponse"}}}
            }
        }
    },
    "definitions": {
        "api.errorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string"}}
        },
        "api.syncRequest": {
            "type": "object",
            "properties": {
                "mode": {"type": "string", "enum": ["full", "incremental"]},
                "testMode": {"type": "boolean"}
            }
        },
        "api.runResponse": {
            "type": "object",
            "properties": {
                "run": {"$ref": "#/definitions/model.SyncRun"},
                "requested_mode": {"type": "string"},
                "pages": {"type": "integer"},
                "truncated": {"type": "boolean"},
                "energy_rows": {"type": "integer"},
                "counts": {"type": "object", "additionalProperties": {"type": "integer"}}
            }
        },
        "api.syncStatusResponse": {
            "type": "object",
            "properties": {
                "runs": {"type": "array", "items": {"$ref": "#/definitions/model.SyncRun"}},
                "stats": {"$ref": "#/definitions/model.DatabaseStats"},
                "state": {"type": "string"},
                "running": {"type": "boolean"}
            }
        },
        "api.schedulerStatusResponse": {
            "type": "object",
            "properties": {
                "running": {"type": "boolean"},
                "next_sync_time": {"type": "string", "format": "date-time"},
                "interval": {"type": "string"},
                "sync_running": {"type": "boolean"}
            }
        },
        "api.healthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "enum": ["ok", "degraded", "failing", "no_data", "store_error"]},
                "timestamp": {"type": "integer"},
                "last_run": {"$ref": "#/definitions/model.SyncRun"},
                "state": {"type": "string"}
            }
        },
        "model.SyncRun": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "run_id": {"type": "string"},
                "sync_type": {"type": "string", "enum": ["full", "incremental", "test"]},
                "status": {"type": "string", "enum": ["success", "partial", "failed"]},
                "records_synced": {"type": "integer"},
                "errors_count": {"type": "integer"},
                "error_message": {"type": "string"},
                "duration_ms": {"type": "integer"},
                "created_at": {"type": "integer"}
            }
        },
        "model.DatabaseStats": {
            "type": "object",
            "properties": {
                "buildings": {"type": "integer"},
                "floors": {"type": "integer"},
                "spaces": {"type": "integer"},
                "points": {"type": "integer"},
                "point_series": {"type": "integer"},
                "energy_usage": {"type": "integer"},
                "sync_runs": {"type": "integer"},
                "orphan_floors": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "voltline API",
	Description:      "Control surface for the voltline building energy sync engine.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
