package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "School Ops API",
        "description": "Leave lifecycle, schedule catalog, cover assignments, and duty rosters",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Leaves", "description": "Leave request lifecycle"},
        {"name": "Teachers", "description": "Staff directory"},
        {"name": "Students", "description": "Pupil roster"},
        {"name": "Covers", "description": "Cover assignments"},
        {"name": "Duty", "description": "Daily duty roster"},
        {"name": "PodDuty", "description": "Pod duty rosters"},
        {"name": "Catalog", "description": "Schedule catalog and availability"},
        {"name": "External", "description": "Webhook ingress"},
        {"name": "Admin", "description": "Operational endpoints"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"}
                }
            }
        },
        "/leaves": {
            "get": {
                "tags": ["Leaves"],
                "summary": "List leave requests",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "leave_type", "in": "query", "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Leaves"],
                "summary": "Submit a leave request",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "leave_type", "in": "formData", "type": "string", "required": true},
                    {"name": "reason", "in": "formData", "type": "string", "required": true},
                    {"name": "leave_date", "in": "formData", "type": "string", "required": true},
                    {"name": "end_date", "in": "formData", "type": "string"},
                    {"name": "start_time", "in": "formData", "type": "string"},
                    {"name": "end_time", "in": "formData", "type": "string"},
                    {"name": "attachment", "in": "formData", "type": "file"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/check-availability": {
            "get": {
                "tags": ["Catalog"],
                "summary": "List free and occupied teachers for a slot",
                "parameters": [
                    {"name": "day", "in": "query", "type": "string", "required": true},
                    {"name": "period", "in": "query", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
