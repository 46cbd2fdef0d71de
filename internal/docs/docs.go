// Package docs registers the command surface's OpenAPI document with swag
// so the Swagger UI can serve it at /swagger/doc.json
package docs

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
    "securityDefinitions": {
        "ApiKeyAuth": {"type": "apiKey", "name": "X-API-Key", "in": "header"}
    },
    "security": [{"ApiKeyAuth": []}],
    "paths": {
        "/health": {
            "get": {"tags": ["health"], "summary": "Health check", "security": [],
                "responses": {"200": {"description": "healthy", "schema": {"$ref": "#/definitions/HealthResponse"}}}}
        },
        "/api/state": {
            "get": {"tags": ["state"], "summary": "Current application state",
                "responses": {"200": {"description": "state", "schema": {"$ref": "#/definitions/AppState"}}}}
        },
        "/api/state/dispatch": {
            "post": {"tags": ["state"], "summary": "Apply a reducer action",
                "parameters": [{"in": "body", "name": "action", "required": true, "schema": {"$ref": "#/definitions/Action"}}],
                "responses": {"200": {"description": "new state", "schema": {"$ref": "#/definitions/AppState"}},
                    "400": {"description": "bad action", "schema": {"$ref": "#/definitions/ErrorResponse"}}}}
        },
        "/api/state/resync": {
            "post": {"tags": ["state"], "summary": "Reload state from the store",
                "responses": {"200": {"description": "state", "schema": {"$ref": "#/definitions/AppState"}}}}
        },
        "/api/photos": {
            "get": {"tags": ["photos"], "summary": "List projected photos",
                "responses": {"200": {"description": "photos", "schema": {"$ref": "#/definitions/PhotoListResponse"}}}},
            "post": {"tags": ["photos"], "summary": "Queue photos for upsert",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/EnqueueRequest"}}],
                "responses": {"202": {"description": "queued"}, "429": {"description": "queue full"}, "503": {"description": "pipeline closed"}}},
            "delete": {"tags": ["photos"], "summary": "Remove every photo", "responses": {"204": {"description": "cleared"}}}
        },
        "/api/photos/import": {
            "post": {"tags": ["photos"], "summary": "Import files or a folder",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/ImportRequest"}}],
                "responses": {"200": {"description": "import summary", "schema": {"$ref": "#/definitions/ImportResponse"}}}}
        },
        "/api/photos/{id}": {
            "get": {"tags": ["photos"], "summary": "Get one photo",
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {"200": {"description": "photo"}, "404": {"description": "not found"}}},
            "delete": {"tags": ["photos"], "summary": "Remove one photo",
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {"204": {"description": "removed"}, "404": {"description": "not found"}}}
        },
        "/api/photos/{id}/config": {
            "put": {"tags": ["photos"], "summary": "Replace a photo's edit config",
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {"204": {"description": "updated"}, "400": {"description": "invalid config"}}}
        },
        "/api/photos/{id}/favorite": {
            "put": {"tags": ["photos"], "summary": "Set the favorite flag",
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {"204": {"description": "updated"}}}
        },
        "/api/photos/{id}/stack": {
            "put": {"tags": ["photos"], "summary": "Assign or clear a stack",
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {"204": {"description": "updated"}}}
        },
        "/api/photos/{id}/metadata": {
            "get": {"tags": ["photos"], "summary": "Read EXIF metadata from the photo file",
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {"200": {"description": "metadata"}, "404": {"description": "not found"}}}
        },
        "/api/presence": {
            "get": {"tags": ["presence"], "summary": "Current presence graph", "responses": {"200": {"description": "graph"}}}
        },
        "/api/presence/emit": {
            "post": {"tags": ["presence"], "summary": "Push a presence event", "responses": {"200": {"description": "graph"}}}
        },
        "/ws": {
            "get": {"tags": ["events"], "summary": "Event stream (websocket)", "responses": {"101": {"description": "upgraded"}}}
        }
    },
    "definitions": {
        "HealthResponse": {"type": "object", "properties": {
            "status": {"type": "string"}, "timestamp": {"type": "string"}, "connected": {"type": "boolean"}}},
        "ErrorResponse": {"type": "object", "properties": {"error": {"type": "string"}}},
        "Photo": {"type": "object", "properties": {
            "id": {"type": "string"}, "image_path": {"type": "string"}, "filename": {"type": "string"},
            "base64": {"type": "string"}, "favorite": {"type": "boolean"}, "stack_id": {"type": "string"},
            "is_stack_primary": {"type": "boolean"}}},
        "AppState": {"type": "object", "properties": {"images": {"type": "array", "items": {"$ref": "#/definitions/Photo"}}}},
        "Action": {"type": "object", "properties": {
            "type": {"type": "string", "enum": ["SetImageLibraryContent", "ClearImageLibraryContent"]},
            "images": {"type": "array", "items": {"$ref": "#/definitions/Photo"}}}},
        "EnqueueRequest": {"type": "object", "properties": {"photos": {"type": "array", "items": {"$ref": "#/definitions/Photo"}}}},
        "ImportRequest": {"type": "object", "properties": {
            "paths": {"type": "array", "items": {"type": "string"}}, "folder": {"type": "string"}}},
        "ImportResponse": {"type": "object", "properties": {
            "imported": {"type": "integer"}, "batches": {"type": "integer"},
            "skipped": {"type": "array", "items": {"type": "string"}}, "ids": {"type": "array", "items": {"type": "string"}}}},
        "PhotoListResponse": {"type": "object", "properties": {
            "photos": {"type": "array", "items": {"type": "object"}}, "totalCount": {"type": "integer"}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "picksy sync daemon API",
	Description:      "Photo library state, upsert queue and presence for the picksy library sync daemon.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
