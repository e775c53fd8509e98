package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Scholaris Records API",
        "description": "Assignment and schedule consistency engine for institutional records.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Auth", "description": "Authentication"},
        {"name": "Assignments", "description": "Student section assignments"},
        {"name": "Schedules", "description": "Weekly slot and room allocation"},
        {"name": "Sections", "description": "Section roster"},
        {"name": "Subjects", "description": "Subject catalogue"},
        {"name": "StudyLoads", "description": "Curriculum and per-student study load"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate a user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/students/{id}/assignment": {
            "get": {
                "tags": ["Assignments"],
                "summary": "Resolve a student's canonical assignment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK, data is null when the student has no assignment", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}/assignments": {
            "get": {
                "tags": ["Assignments"],
                "summary": "List all assignment rows for a student",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}/study-load": {
            "get": {
                "tags": ["StudyLoads"],
                "summary": "List the study load a student follows",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/assignments": {
            "get": {
                "tags": ["Assignments"],
                "summary": "List assignments",
                "parameters": [
                    {"name": "student_id", "in": "query", "type": "string"},
                    {"name": "section_id", "in": "query", "type": "string"},
                    {"name": "school_year", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Assignments"],
                "summary": "Enroll a student into a section",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EnrollRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/assignments/{id}/status": {
            "patch": {
                "tags": ["Assignments"],
                "summary": "Update an assignment's status",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateAssignmentStatusRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/assignments/{id}": {
            "delete": {
                "tags": ["Assignments"],
                "summary": "Delete assignment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/schedules": {
            "get": {
                "tags": ["Schedules"],
                "summary": "List schedules",
                "parameters": [
                    {"name": "section_id", "in": "query", "type": "string"},
                    {"name": "subject_id", "in": "query", "type": "string"},
                    {"name": "teacher_id", "in": "query", "type": "string"},
                    {"name": "day", "in": "query", "type": "string"},
                    {"name": "school_year", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Schedules"],
                "summary": "Schedule a class",
                "description": "Allocates a weekly slot. Zero start and end times declare the subject for the section without fixing a slot.",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ScheduleClassRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Room or teacher time conflict"}
                }
            }
        },
        "/schedules/{id}": {
            "get": {
                "tags": ["Schedules"],
                "summary": "Get schedule",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Schedules"],
                "summary": "Delete schedule",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/sections": {
            "get": {
                "tags": ["Sections"],
                "summary": "List sections",
                "parameters": [
                    {"name": "school_year", "in": "query", "type": "string"},
                    {"name": "grade_level", "in": "query", "type": "string"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Sections"],
                "summary": "Create section",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateSectionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sections/{id}": {
            "get": {
                "tags": ["Sections"],
                "summary": "Get section",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Sections"],
                "summary": "Update section",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateSectionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sections/{id}/study-load": {
            "get": {
                "tags": ["StudyLoads"],
                "summary": "List a section's curriculum study load",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/subjects": {
            "get": {
                "tags": ["Subjects"],
                "summary": "List subjects",
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Subjects"],
                "summary": "Create subject",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateSubjectRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/subjects/{id}": {
            "get": {
                "tags": ["Subjects"],
                "summary": "Get subject",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Subjects"],
                "summary": "Update subject",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateSubjectRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Subjects"],
                "summary": "Delete subject",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/study-loads/custom": {
            "post": {
                "tags": ["StudyLoads"],
                "summary": "Add a custom study load entry for an irregular student",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AddCustomEntryRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Duplicate entry"}
                }
            }
        },
        "/study-loads/custom/{id}": {
            "delete": {
                "tags": ["StudyLoads"],
                "summary": "Remove a custom study load entry",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "EnrollRequest": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "section_id": {"type": "string"},
                "section_name": {"type": "string"},
                "school_year": {"type": "string"},
                "status": {"type": "string"},
                "balance": {"type": "number"},
                "sanction": {"type": "string"}
            },
            "required": ["student_id"]
        },
        "UpdateAssignmentStatusRequest": {
            "type": "object",
            "properties": {
                "status": {"type": "string"}
            },
            "required": ["status"]
        },
        "ScheduleClassRequest": {
            "type": "object",
            "properties": {
                "subject_code": {"type": "string"},
                "section_name": {"type": "string"},
                "day_of_week": {"type": "string"},
                "time_start": {"type": "string"},
                "time_end": {"type": "string"},
                "school_year": {"type": "string"},
                "building": {"type": "string"},
                "floor": {"type": "integer"},
                "room_number": {"type": "string"},
                "teacher_name": {"type": "string"}
            },
            "required": ["subject_code", "section_name", "day_of_week"]
        },
        "CreateSectionRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "grade_level": {"type": "string"},
                "school_year": {"type": "string"},
                "course": {"type": "string"}
            },
            "required": ["name", "grade_level"]
        },
        "UpdateSectionRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "grade_level": {"type": "string"},
                "school_year": {"type": "string"},
                "course": {"type": "string"}
            },
            "required": ["name", "grade_level"]
        },
        "CreateSubjectRequest": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "name": {"type": "string"},
                "units": {"type": "integer"}
            },
            "required": ["code", "name"]
        },
        "UpdateSubjectRequest": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "name": {"type": "string"},
                "units": {"type": "integer"}
            },
            "required": ["code", "name"]
        },
        "AddCustomEntryRequest": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "subject_code": {"type": "string"},
                "teacher_name": {"type": "string"}
            },
            "required": ["student_id", "subject_code"]
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
