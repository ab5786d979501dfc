// Package docs registers the OpenAPI description served under /swagger.
// It mirrors the handler annotations; regenerate with `swag init -g cmd/jarvis/main.go`.
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
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Service health",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.HealthResponse"}}
                }
            }
        },
        "/api/v1/chat": {
            "post": {
                "description": "Answers from learned knowledge (offline), the online provider (online), or knowledge first then online (auto). Online failures fall back to offline.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["chat"],
                "summary": "Send a message to the assistant",
                "parameters": [
                    {
                        "description": "Chat request",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/dto.ChatRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.ChatResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/dto.ErrorResponse"}}
                }
            }
        },
        "/api/v1/feedback": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["feedback"],
                "summary": "Rate an assistant response",
                "parameters": [
                    {
                        "description": "Feedback request",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/dto.FeedbackRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.FeedbackResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/dto.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/dto.ErrorResponse"}}
                }
            }
        },
        "/api/v1/stats": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Learning statistics",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.StatsResponse"}}
                }
            }
        },
        "/api/v1/sessions/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Per-session counters",
                "parameters": [
                    {"type": "string", "description": "Session ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.SessionResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/dto.ErrorResponse"}}
                }
            }
        },
        "/api/v1/admin/login": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Admin login",
                "parameters": [
                    {
                        "description": "Login request",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/dto.AdminLoginRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.AdminLoginResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/dto.ErrorResponse"}}
                }
            }
        },
        "/api/v1/admin/improve": {
            "post": {
                "security": [{"Bearer": []}],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Run an improvement cycle now",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.CycleReportResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/dto.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/dto.ErrorResponse"}}
                }
            }
        },
        "/api/v1/admin/knowledge": {
            "get": {
                "security": [{"Bearer": []}],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "List learned knowledge entries",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.KnowledgeListResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/dto.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "dto.AdminLoginRequest": {
            "type": "object",
            "properties": {
                "password": {"type": "string"}
            }
        },
        "dto.AdminLoginResponse": {
            "type": "object",
            "properties": {
                "access_token": {"type": "string"},
                "expires_in": {"type": "integer"},
                "token_type": {"type": "string"}
            }
        },
        "dto.ChatRequest": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "mode": {"type": "string", "enum": ["offline", "online", "auto"]},
                "session_id": {"type": "string"}
            }
        },
        "dto.ChatResponse": {
            "type": "object",
            "properties": {
                "confidence": {"type": "number"},
                "message_id": {"type": "string"},
                "mode_used": {"type": "string"},
                "response": {"type": "string"},
                "session_id": {"type": "string"},
                "sources": {"type": "array", "items": {"type": "string"}},
                "timestamp": {"type": "string"}
            }
        },
        "dto.CycleReportResponse": {
            "type": "object",
            "properties": {
                "completed_at": {"type": "string"},
                "entries_created": {"type": "integer"},
                "entries_pruned": {"type": "integer"},
                "entries_updated": {"type": "integer"},
                "feedback_scanned": {"type": "integer"},
                "interactions_scanned": {"type": "integer"}
            }
        },
        "dto.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"}
            }
        },
        "dto.FeedbackRequest": {
            "type": "object",
            "properties": {
                "feedback": {"type": "string"},
                "message_id": {"type": "string"},
                "rating": {"type": "integer", "minimum": 1, "maximum": 5},
                "session_id": {"type": "string"}
            }
        },
        "dto.FeedbackResponse": {
            "type": "object",
            "properties": {
                "feedback_id": {"type": "string"},
                "message_id": {"type": "string"},
                "status": {"type": "string"},
                "timestamp": {"type": "string"}
            }
        },
        "dto.HealthResponse": {
            "type": "object",
            "properties": {
                "online_provider_configured": {"type": "boolean"},
                "online_provider_reachable": {"type": "boolean"},
                "persistence_error": {"type": "string"},
                "status": {"type": "string"},
                "timestamp": {"type": "string"}
            }
        },
        "dto.KnowledgeEntryResponse": {
            "type": "object",
            "properties": {
                "created_at": {"type": "string"},
                "id": {"type": "string"},
                "last_updated": {"type": "string"},
                "pattern": {"type": "string"},
                "response_template": {"type": "string"},
                "score": {"type": "number"},
                "usage_count": {"type": "integer"}
            }
        },
        "dto.KnowledgeListResponse": {
            "type": "object",
            "properties": {
                "count": {"type": "integer"},
                "entries": {"type": "array", "items": {"$ref": "#/definitions/dto.KnowledgeEntryResponse"}}
            }
        },
        "dto.SessionResponse": {
            "type": "object",
            "properties": {
                "feedback": {"type": "integer"},
                "first_seen": {"type": "string"},
                "interactions": {"type": "integer"},
                "last_seen": {"type": "string"},
                "session_id": {"type": "string"}
            }
        },
        "dto.StatsResponse": {
            "type": "object",
            "properties": {
                "active_sessions": {"type": "integer"},
                "improvement_cycles": {"type": "integer"},
                "interaction_counter": {"type": "integer"},
                "knowledge_entry_count": {"type": "integer"},
                "last_improvement_at": {"type": "string"},
                "negative_feedback": {"type": "integer"},
                "positive_feedback": {"type": "integer"},
                "steps_until_improvement": {"type": "integer"},
                "success_rate": {"type": "number"},
                "total_feedback": {"type": "integer"},
                "total_interactions": {"type": "integer"}
            }
        }
    },
    "securityDefinitions": {
        "Bearer": {
            "description": "Type \"Bearer\" followed by a space and JWT token.",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Jarvis API",
	Description:      "Self-learning assistant: chat, star-rated feedback and learning statistics",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
