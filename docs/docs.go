// Package docs registers the swagger document served under /swagger/.
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
        "/runs": {
            "get": {
                "description": "Get a list of all pipeline runs with their current status",
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "List all runs",
                "responses": {
                    "200": {"description": "List of runs", "schema": {"type": "array", "items": {"$ref": "#/definitions/store.Run"}}},
                    "500": {"description": "Internal server error", "schema": {"type": "object", "additionalProperties": true}}
                }
            },
            "post": {
                "description": "Submit endpoints and start a fetch-and-parse run in the background",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Create a new run",
                "parameters": [
                    {"description": "Run configuration", "name": "run", "in": "body", "required": true, "schema": {"$ref": "#/definitions/model.RunSpec"}}
                ],
                "responses": {
                    "202": {"description": "Run accepted", "schema": {"type": "object", "additionalProperties": true}},
                    "400": {"description": "Invalid request payload", "schema": {"type": "object", "additionalProperties": true}},
                    "500": {"description": "Internal server error", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/runs/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Get run",
                "parameters": [{"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Run details", "schema": {"$ref": "#/definitions/store.Run"}},
                    "404": {"description": "Run not found", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/runs/{id}/outcomes": {
            "get": {
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "List run outcomes",
                "parameters": [{"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Outcomes in delivery order", "schema": {"type": "array", "items": {"$ref": "#/definitions/store.StoredOutcome"}}},
                    "404": {"description": "Run not found", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/runs/{id}/download": {
            "get": {
                "produces": ["application/x-ndjson"],
                "tags": ["runs"],
                "summary": "Download run results as JSONL",
                "parameters": [{"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "JSONL file"},
                    "404": {"description": "Results not found"}
                }
            }
        }
    },
    "definitions": {
        "model.RunSpec": {
            "type": "object",
            "properties": {
                "endpoints": {"type": "array", "items": {"type": "string"}},
                "concurrency_limit": {"type": "integer"},
                "timeout": {"type": "string"},
                "policy": {"type": "string", "enum": ["gated_fan_out", "worker_pool"]},
                "array_policy": {"type": "string", "enum": ["index", "omit"]},
                "unwrap_root_array": {"type": "boolean"}
            }
        },
        "store.Run": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "spec": {"$ref": "#/definitions/model.RunSpec"},
                "status": {"type": "string"},
                "summary": {"type": "object", "additionalProperties": true},
                "createdAt": {"type": "string"},
                "updatedAt": {"type": "string"}
            }
        },
        "store.StoredOutcome": {
            "type": "object",
            "properties": {
                "url": {"type": "string"},
                "succeeded": {"type": "boolean"},
                "failure_kind": {"type": "string", "enum": ["timeout", "transport", "parse", "unknown"]},
                "status_code": {"type": "integer"},
                "error": {"type": "string"},
                "record_count": {"type": "integer"},
                "content": {"type": "array", "items": {"type": "object", "additionalProperties": true}},
                "duration_ms": {"type": "integer"},
                "created_at": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Fetch Pipeline API",
	Description:      "Bounded-concurrency streaming fetch-and-parse runs.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
