package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "ReWear API",
        "description": "Community clothing exchange: listings, swap requests and a points ledger.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Authentication", "description": "Registration, login and profile"},
        {"name": "Items", "description": "Listings and the public catalog"},
        {"name": "Swaps", "description": "Swap requests and points settlement"},
        {"name": "Dashboard", "description": "Member summary and points statement"},
        {"name": "Admin", "description": "Moderation and platform statistics"},
        {"name": "Media", "description": "Item photo uploads"},
        {"name": "Notifications", "description": "Realtime event feed"}
    ],
    "paths": {
        "/auth/register": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Register a member",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Email already registered", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Log in",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Current member",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/items": {
            "get": {
                "tags": ["Items"],
                "summary": "Browse the public catalog",
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "category", "in": "query", "type": "string"},
                    {"name": "condition", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Unknown filter", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Items"],
                "summary": "List an item",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "Idempotency-Key", "in": "header", "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateItemRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/items/featured": {
            "get": {
                "tags": ["Items"],
                "summary": "Featured items",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/items/{id}": {
            "get": {
                "tags": ["Items"],
                "summary": "Item detail",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/items/{id}/withdraw": {
            "post": {
                "tags": ["Items"],
                "summary": "Withdraw an item",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not the uploader", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/items/{id}/swap-requests": {
            "post": {
                "tags": ["Swaps"],
                "summary": "Request an item",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "Idempotency-Key", "in": "header", "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateSwapRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Item unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Insufficient points or own item", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/swap-requests": {
            "get": {
                "tags": ["Swaps"],
                "summary": "List swap requests",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "box", "in": "query", "type": "string", "enum": ["incoming", "outgoing"]},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/swap-requests/{id}": {
            "get": {
                "tags": ["Swaps"],
                "summary": "Swap request detail",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/swap-requests/{id}/accept": {
            "post": {
                "tags": ["Swaps"],
                "summary": "Accept a pending request",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid transition", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/swap-requests/{id}/reject": {
            "post": {
                "tags": ["Swaps"],
                "summary": "Reject a request",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid transition", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/swap-requests/{id}/complete": {
            "post": {
                "tags": ["Swaps"],
                "summary": "Complete an accepted request and settle points",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid transition or item unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Insufficient points", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/me/items": {
            "get": {
                "tags": ["Items"],
                "summary": "Items uploaded by the caller",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/me/dashboard": {
            "get": {
                "tags": ["Dashboard"],
                "summary": "Member dashboard",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/me/points/statement": {
            "get": {
                "tags": ["Dashboard"],
                "summary": "Download the points statement",
                "security": [{"BearerAuth": []}],
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "Statement file", "schema": {"type": "file"}},
                    "400": {"description": "Unknown format", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/uploads/images": {
            "post": {
                "tags": ["Media"],
                "summary": "Upload an item photo",
                "security": [{"BearerAuth": []}],
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "file", "in": "formData", "required": true, "type": "file"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Unsupported or oversized image", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/notifications/ticket": {
            "post": {
                "tags": ["Notifications"],
                "summary": "Issue a websocket ticket",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/notifications/ws": {
            "get": {
                "tags": ["Notifications"],
                "summary": "Notification websocket",
                "parameters": [
                    {"name": "ticket", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "101": {"description": "Switching protocols"},
                    "401": {"description": "Invalid ticket", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/items/pending": {
            "get": {
                "tags": ["Admin"],
                "summary": "Moderation queue",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/items/{id}/approve": {
            "post": {
                "tags": ["Admin"],
                "summary": "Approve a listing",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/items/{id}/reject": {
            "post": {
                "tags": ["Admin"],
                "summary": "Reject a listing",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/items/{id}/feature": {
            "post": {
                "tags": ["Admin"],
                "summary": "Toggle the featured flag",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/FeatureItemRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/stats": {
            "get": {
                "tags": ["Admin"],
                "summary": "Platform statistics",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "RegisterRequest": {
            "type": "object",
            "required": ["email", "password", "name"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string", "minLength": 8},
                "name": {"type": "string"}
            }
        },
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "CreateItemRequest": {
            "type": "object",
            "required": ["title", "description", "category", "type", "size", "condition", "points_value"],
            "properties": {
                "title": {"type": "string"},
                "description": {"type": "string"},
                "category": {"type": "string", "enum": ["tops", "bottoms", "dresses", "outerwear", "shoes", "accessories"]},
                "type": {"type": "string"},
                "size": {"type": "string"},
                "condition": {"type": "string", "enum": ["like-new", "excellent", "good", "fair"]},
                "tags": {"type": "array", "items": {"type": "string"}},
                "images": {"type": "array", "items": {"type": "string"}},
                "points_value": {"type": "integer"}
            }
        },
        "CreateSwapRequest": {
            "type": "object",
            "required": ["mode"],
            "properties": {
                "mode": {"type": "string", "enum": ["direct", "points"]},
                "offered_item_id": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "FeatureItemRequest": {
            "type": "object",
            "required": ["featured"],
            "properties": {
                "featured": {"type": "boolean"}
            }
        },
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
                "status": {"type": "integer"},
                "fields": {"type": "object"}
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
