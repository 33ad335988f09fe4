// Package docs registers the OpenAPI document served under /swagger.
//
// The template mirrors the swag annotations on the handlers in
// internal/http/handlers; keep both in sync when routes change.
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
        "/reports": {
            "get": {
                "description": "Returns a page of the user's reports, newest first. Supports weak ETag via If-None-Match and may return 304.",
                "produces": ["application/json"],
                "tags": ["Reports"],
                "summary": "List reports (paginated)",
                "operationId": "listReports",
                "parameters": [
                    {"type": "string", "description": "User ID (dev mode only)", "name": "X-User-ID", "in": "header"},
                    {"type": "string", "description": "Return 304 if ETag matches", "name": "If-None-Match", "in": "header"},
                    {"minimum": 1, "type": "integer", "default": 1, "description": "Page number", "name": "page", "in": "query"},
                    {"maximum": 100, "minimum": 1, "type": "integer", "default": 20, "description": "Items per page", "name": "page_size", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListReportsResponse"}, "headers": {"ETag": {"type": "string", "description": "Weak ETag for current result"}}},
                    "304": {"description": "Not Modified", "schema": {"type": "string"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "post": {
                "description": "Generates an on-demand report from the user's recent notes in the given categories. Supports idempotency via the Idempotency-Key header. At most three on-demand reports may be generated per local calendar week.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Reports"],
                "summary": "Generate a report",
                "operationId": "createReport",
                "parameters": [
                    {"type": "string", "description": "User ID (dev mode only)", "name": "X-User-ID", "in": "header"},
                    {"type": "string", "description": "Idempotency key for safe retries (UUID recommended)", "name": "Idempotency-Key", "in": "header"},
                    {"description": "Categories to report on", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.CreateReportRequest"}}
                ],
                "responses": {
                    "200": {"description": "Replayed earlier report", "schema": {"$ref": "#/definitions/handlers.ReportResponse"}, "headers": {"Idempotent-Replayed": {"type": "string", "description": "true"}}},
                    "201": {"description": "Report generated", "schema": {"$ref": "#/definitions/handlers.ReportResponse"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Replayed report no longer exists", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "422": {"description": "Categories not owned by the user", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "429": {"description": "Weekly limit reached", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "502": {"description": "LLM rejected the request or returned invalid output", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "LLM unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "504": {"description": "LLM timed out", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/reports/{id}": {
            "get": {
                "description": "Returns one report owned by the current user.",
                "produces": ["application/json"],
                "tags": ["Reports"],
                "summary": "Get a report",
                "operationId": "getReport",
                "parameters": [
                    {"type": "string", "description": "User ID (dev mode only)", "name": "X-User-ID", "in": "header"},
                    {"type": "string", "format": "uuid", "description": "Report ID (UUID)", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Report"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Report not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "delete": {
                "description": "Soft-deletes a report. Deleted reports still count toward the weekly limit, and replaying the Idempotency-Key that produced one returns 404.",
                "tags": ["Reports"],
                "summary": "Delete a report",
                "operationId": "deleteReport",
                "parameters": [
                    {"type": "string", "description": "User ID (dev mode only)", "name": "X-User-ID", "in": "header"},
                    {"type": "string", "format": "uuid", "description": "Report ID (UUID)", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Report not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/llm/usage": {
            "get": {
                "description": "Returns request, error and token counters, average latency over the last 100 calls, the estimated cost, and the circuit breaker state.",
                "produces": ["application/json"],
                "tags": ["LLM"],
                "summary": "LLM usage statistics",
                "operationId": "getLLMUsage",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.UsageResponse"}}
                }
            }
        },
        "/admin/llm/usage/reset": {
            "post": {
                "description": "Zeroes the gateway counters. Requires the admin token.",
                "tags": ["Admin"],
                "summary": "Reset LLM usage statistics",
                "operationId": "resetLLMUsage",
                "parameters": [
                    {"type": "string", "description": "Admin token", "name": "X-Admin-Token", "in": "header", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content", "schema": {"type": "string"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.Report": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "user_id": {"type": "string"},
                "kind": {"type": "string", "enum": ["on_demand", "scheduled"]},
                "categories_snapshot": {"type": "array", "items": {"type": "string"}},
                "title": {"type": "string"},
                "html": {"type": "string"},
                "text_version": {"type": "string"},
                "model": {"type": "string"},
                "prompt_version": {"type": "string"},
                "tokens_used": {"type": "integer"},
                "created_at": {"type": "string", "format": "date-time"}
            }
        },
        "handlers.CreateReportRequest": {
            "type": "object",
            "properties": {
                "category_ids": {"type": "array", "items": {"type": "string"}}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string", "example": "123e4567-e89b-12d3-a456-426614174000"},
                "code": {"type": "string", "example": "not_found"},
                "message": {"type": "string", "example": "resource not found"},
                "details": {"type": "object"}
            }
        },
        "handlers.ListReportsResponse": {
            "type": "object",
            "properties": {
                "reports": {"type": "array", "items": {"$ref": "#/definitions/domain.Report"}},
                "pagination": {"$ref": "#/definitions/handlers.Pagination"}
            }
        },
        "handlers.Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total": {"type": "integer"},
                "total_pages": {"type": "integer"},
                "has_next": {"type": "boolean"}
            }
        },
        "handlers.ReportResponse": {
            "type": "object",
            "properties": {
                "report": {"$ref": "#/definitions/domain.Report"},
                "replayed": {"type": "boolean"},
                "warnings": {"type": "array", "items": {"type": "string"}}
            }
        },
        "handlers.UsageResponse": {
            "type": "object",
            "properties": {
                "usage": {
                    "type": "object",
                    "properties": {
                        "request_count": {"type": "integer"},
                        "error_count": {"type": "integer"},
                        "prompt_tokens": {"type": "integer"},
                        "completion_tokens": {"type": "integer"},
                        "total_tokens": {"type": "integer"},
                        "avg_latency_ms": {"type": "number"},
                        "latency_samples": {"type": "integer"},
                        "estimated_cost_usd": {"type": "number"},
                        "last_reset_at": {"type": "string", "format": "date-time"}
                    }
                },
                "circuit": {
                    "type": "object",
                    "properties": {
                        "state": {"type": "string", "enum": ["closed", "open", "half_open"]},
                        "consecutive_failures": {"type": "integer"},
                        "opened_at": {"type": "string", "format": "date-time"}
                    }
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Reflect Reports API",
	Description:      "Weekly reflection reports generated from user notes by an LLM.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
