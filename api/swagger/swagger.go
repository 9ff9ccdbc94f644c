package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Campus Tutoring API",
        "description": "Scheduling core for peer tutoring sessions: windows, overlap, seats, enrollments and bans",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Sessions", "description": "Tutor-owned time slots"},
        {"name": "Enrollments", "description": "Student seats"},
        {"name": "Bans", "description": "Tutor bans and their cascade"},
        {"name": "Dashboard", "description": "Landing summaries and calendar feeds"},
        {"name": "Metrics", "description": "Service counters"}
    ],
    "paths": {
        "/sessions": {
            "get": {
                "tags": ["Sessions"],
                "summary": "List sessions (tutor: own, admin: all)",
                "parameters": [
                    {"name": "tutor_id", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string", "enum": ["SCHEDULED", "IN_PROGRESS", "COMPLETED", "CANCELLED"]},
                    {"name": "date_from", "in": "query", "type": "string", "format": "date"},
                    {"name": "date_to", "in": "query", "type": "string", "format": "date"},
                    {"name": "order", "in": "query", "type": "string", "enum": ["asc", "desc"]},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Sessions"],
                "summary": "Create tutoring session",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateSessionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "INVALID_WINDOW or VALIDATION_ERROR", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "OVERLAP", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/available": {
            "get": {
                "tags": ["Sessions"],
                "summary": "Sessions a student can still book",
                "parameters": [
                    {"name": "subject_id", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/sessions/overlap-check": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Dry-run overlap check",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/OverlapCheckRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/sessions/{id}": {
            "get": {
                "tags": ["Sessions"],
                "summary": "Get session with effective status and remaining seats",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "NOT_FOUND", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Sessions"],
                "summary": "Edit a scheduled session",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateSessionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "OVERLAP or SESSION_NOT_OPEN", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Sessions"],
                "summary": "Delete session (administrators)",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"204": {"description": "Deleted"}}
            }
        },
        "/sessions/{id}/cancel": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Cancel session and its confirmed enrollments",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/sessions/{id}/restore": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Restore a cancelled session (administrators)",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/sessions/{id}/reconcile": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Persist the derived status",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/sessions/{id}/status": {
            "get": {
                "tags": ["Sessions"],
                "summary": "Effective status",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/sessions/{id}/seats": {
            "get": {
                "tags": ["Sessions"],
                "summary": "Remaining seats",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/sessions/{id}/roster": {
            "get": {
                "tags": ["Sessions"],
                "summary": "Confirmed students",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/sessions/{id}/roster/export": {
            "get": {
                "tags": ["Sessions"],
                "summary": "Download roster",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {"200": {"description": "File", "schema": {"type": "file"}}}
            }
        },
        "/sessions/{id}/enrollments": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Book a seat",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/EnrollRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "BANNED", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "ALREADY_ENROLLED, SESSION_FULL or SESSION_NOT_OPEN", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}/enrollments/me": {
            "delete": {
                "tags": ["Enrollments"],
                "summary": "Give up a seat",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/enrollments/me": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "Active and past enrollments of the caller",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/enrollments/{id}/exclude": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Exclude a student, optionally banning them",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/ExcludeRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/bans": {
            "get": {
                "tags": ["Bans"],
                "summary": "List bans",
                "parameters": [
                    {"name": "tutor_id", "in": "query", "type": "string"},
                    {"name": "student_id", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Bans"],
                "summary": "Ban a student and cancel their enrollments with the tutor",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BanRequest"}}
                ],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/bans/{id}": {
            "delete": {
                "tags": ["Bans"],
                "summary": "Lift a ban",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"204": {"description": "Deleted"}}
            }
        },
        "/dashboard/tutor": {
            "get": {
                "tags": ["Dashboard"],
                "summary": "Tutor dashboard",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/dashboard/student": {
            "get": {
                "tags": ["Dashboard"],
                "summary": "Student dashboard",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/calendar/tutor": {
            "get": {
                "tags": ["Dashboard"],
                "summary": "Calendar feed of a tutor's sessions",
                "parameters": [
                    {"name": "tutor_id", "in": "query", "type": "string"},
                    {"name": "from", "in": "query", "type": "string", "format": "date"},
                    {"name": "to", "in": "query", "type": "string", "format": "date"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/calendar/student": {
            "get": {
                "tags": ["Dashboard"],
                "summary": "Calendar feed of the student's booked sessions",
                "parameters": [
                    {"name": "from", "in": "query", "type": "string", "format": "date"},
                    {"name": "to", "in": "query", "type": "string", "format": "date"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/metrics/summary": {
            "get": {
                "tags": ["Metrics"],
                "summary": "Service counters (administrators)",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        }
    },
    "definitions": {
        "CreateSessionRequest": {
            "type": "object",
            "required": ["subject_id", "title", "date", "start_time", "end_time", "location", "max_seats"],
            "properties": {
                "tutor_id": {"type": "string", "description": "administrators only"},
                "subject_id": {"type": "string"},
                "title": {"type": "string"},
                "description": {"type": "string"},
                "date": {"type": "string", "format": "date"},
                "start_time": {"type": "string", "example": "09:00"},
                "end_time": {"type": "string", "example": "10:30"},
                "location": {"type": "string"},
                "max_seats": {"type": "integer"}
            }
        },
        "UpdateSessionRequest": {
            "type": "object",
            "properties": {
                "date": {"type": "string", "format": "date"},
                "start_time": {"type": "string"},
                "end_time": {"type": "string"},
                "location": {"type": "string"},
                "description": {"type": "string"},
                "max_seats": {"type": "integer"},
                "status": {"type": "string", "enum": ["SCHEDULED", "CANCELLED"]}
            }
        },
        "OverlapCheckRequest": {
            "type": "object",
            "required": ["date", "start_time", "end_time"],
            "properties": {
                "tutor_id": {"type": "string"},
                "date": {"type": "string", "format": "date"},
                "start_time": {"type": "string"},
                "end_time": {"type": "string"},
                "exclude_id": {"type": "string"}
            }
        },
        "EnrollRequest": {
            "type": "object",
            "properties": {"comment": {"type": "string"}}
        },
        "ExcludeRequest": {
            "type": "object",
            "properties": {
                "ban": {"type": "boolean"},
                "reason": {"type": "string"}
            }
        },
        "BanRequest": {
            "type": "object",
            "required": ["student_id"],
            "properties": {
                "tutor_id": {"type": "string", "description": "administrators only"},
                "student_id": {"type": "string"},
                "reason": {"type": "string"}
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
                "details": {"type": "object"}
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
