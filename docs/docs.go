// Package docs holds the OpenAPI definition served by the swagger UI.
// Regenerate with: swag init -g cmd/api/main.go -o docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Service health including database connectivity",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/handler.healthResponse"}
                    },
                    "503": {
                        "description": "Service Unavailable",
                        "schema": {"$ref": "#/definitions/handler.errorPayload"}
                    }
                }
            }
        },
        "/api/documents": {
            "get": {
                "produces": ["application/json"],
                "tags": ["documents"],
                "summary": "List document metadata, most recent first",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/handler.listResponse"}
                    }
                }
            },
            "post": {
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["documents"],
                "summary": "Upload a PDF document",
                "parameters": [
                    {
                        "type": "file",
                        "description": "PDF file (max 10 MiB)",
                        "name": "document",
                        "in": "formData",
                        "required": true
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {"$ref": "#/definitions/handler.uploadResponse"}
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {"$ref": "#/definitions/handler.errorPayload"}
                    }
                }
            }
        },
        "/api/documents/{id}": {
            "get": {
                "produces": ["application/pdf"],
                "tags": ["documents"],
                "summary": "Download a document's content",
                "parameters": [
                    {
                        "type": "integer",
                        "description": "Document ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {
                        "description": "Bad Request",
                        "schema": {"$ref": "#/definitions/handler.errorPayload"}
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {"$ref": "#/definitions/handler.errorPayload"}
                    }
                }
            },
            "delete": {
                "tags": ["documents"],
                "summary": "Delete a document's blob and metadata",
                "parameters": [
                    {
                        "type": "integer",
                        "description": "Document ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {
                        "description": "Not Found",
                        "schema": {"$ref": "#/definitions/handler.errorPayload"}
                    }
                }
            }
        },
        "/api/documents/{id}/url": {
            "get": {
                "produces": ["application/json"],
                "tags": ["documents"],
                "summary": "Mint a presigned download link",
                "parameters": [
                    {
                        "type": "integer",
                        "description": "Document ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {
                        "description": "Not Found",
                        "schema": {"$ref": "#/definitions/handler.errorPayload"}
                    },
                    "501": {
                        "description": "Not Implemented",
                        "schema": {"$ref": "#/definitions/handler.errorPayload"}
                    }
                }
            }
        }
    },
    "definitions": {
        "handler.documentResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "filename": {"type": "string"},
                "filesize": {"type": "integer"},
                "created_at": {"type": "string"}
            }
        },
        "handler.errorPayload": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string"},
                "error": {
                    "type": "object",
                    "properties": {
                        "code": {"type": "string"},
                        "message": {"type": "string"}
                    }
                }
            }
        },
        "handler.healthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "timestamp": {"type": "string"}
            }
        },
        "handler.listResponse": {
            "type": "object",
            "properties": {
                "documents": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/handler.documentResponse"}
                }
            }
        },
        "handler.uploadResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "document": {"$ref": "#/definitions/handler.documentResponse"}
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
	Title:            "Medical Documents API",
	Description:      "",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
