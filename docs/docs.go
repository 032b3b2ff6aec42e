// Package docs registers the OpenAPI description served under /swagger.
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
        "/assignments/actifs/{token}/validate": {
            "get": {
                "produces": ["application/json"],
                "tags": ["acceptation"],
                "summary": "Validate an equipment assignment link",
                "parameters": [
                    {"type": "string", "description": "assignment token", "name": "token", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/assignments.ValidateActifsResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/assignments.invalidDTO"}}
                }
            }
        },
        "/assignments/actifs/{token}/accept": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["acceptation"],
                "summary": "Accept an equipment assignment",
                "parameters": [
                    {"type": "string", "description": "assignment token", "name": "token", "in": "path", "required": true},
                    {"description": "terms acceptance", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/assignments.AcceptRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/assignments.failureDTO"}}
                }
            }
        },
        "/assignments/actifs/{token}/reject": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["acceptation"],
                "summary": "Reject an equipment assignment",
                "parameters": [
                    {"type": "string", "description": "assignment token", "name": "token", "in": "path", "required": true},
                    {"description": "optional reason", "name": "body", "in": "body", "schema": {"$ref": "#/definitions/assignments.RejectRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/assignments.failureDTO"}}
                }
            }
        },
        "/assignments/licenses/{token}/validate": {
            "get": {
                "produces": ["application/json"],
                "tags": ["acceptation"],
                "summary": "Validate a license assignment link",
                "parameters": [
                    {"type": "string", "description": "assignment token", "name": "token", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/assignments.ValidateLicensesResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/assignments.invalidDTO"}}
                }
            }
        },
        "/assignments/licenses/{token}/accept": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["acceptation"],
                "summary": "Accept a license assignment",
                "parameters": [
                    {"type": "string", "description": "assignment token", "name": "token", "in": "path", "required": true},
                    {"description": "terms acceptance", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/assignments.AcceptRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/assignments.failureDTO"}}
                }
            }
        },
        "/assignments/licenses/{token}/reject": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["acceptation"],
                "summary": "Reject a license assignment",
                "parameters": [
                    {"type": "string", "description": "assignment token", "name": "token", "in": "path", "required": true},
                    {"description": "optional reason", "name": "body", "in": "body", "schema": {"$ref": "#/definitions/assignments.RejectRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/assignments.failureDTO"}}
                }
            }
        }
    },
    "definitions": {
        "assignments.AcceptRequest": {
            "type": "object",
            "properties": {"acceptTerms": {"type": "boolean"}}
        },
        "assignments.RejectRequest": {
            "type": "object",
            "properties": {"reason": {"type": "string"}}
        },
        "assignments.EmployeeDTO": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "nom": {"type": "string"},
                "prenom": {"type": "string"},
                "email": {"type": "string"}
            }
        },
        "assignments.ActifDTO": {
            "type": "object",
            "properties": {
                "actifId": {"type": "integer"},
                "marque": {"type": "string"},
                "modele": {"type": "string"},
                "serialNumber": {"type": "string"},
                "type": {"type": "string"},
                "quantity": {"type": "integer"},
                "assignmentStatus": {"type": "string"},
                "displayName": {"type": "string"}
            }
        },
        "assignments.LicenseDTO": {
            "type": "object",
            "properties": {
                "licenseId": {"type": "integer"},
                "nom": {"type": "string"},
                "editeur": {"type": "string"},
                "version": {"type": "string"},
                "quantity": {"type": "integer"},
                "assignmentStatus": {"type": "string"},
                "displayName": {"type": "string"}
            }
        },
        "assignments.ValidateActifsResponse": {
            "type": "object",
            "properties": {
                "valid": {"type": "boolean"},
                "employee": {"$ref": "#/definitions/assignments.EmployeeDTO"},
                "actifs": {"type": "array", "items": {"$ref": "#/definitions/assignments.ActifDTO"}},
                "expiresAt": {"type": "string"}
            }
        },
        "assignments.ValidateLicensesResponse": {
            "type": "object",
            "properties": {
                "valid": {"type": "boolean"},
                "employee": {"$ref": "#/definitions/assignments.EmployeeDTO"},
                "licenses": {"type": "array", "items": {"$ref": "#/definitions/assignments.LicenseDTO"}},
                "expiresAt": {"type": "string"}
            }
        },
        "assignments.ItemState": {
            "type": "object",
            "properties": {
                "itemId": {"type": "integer"},
                "status": {"type": "string"}
            }
        },
        "assignments.invalidDTO": {
            "type": "object",
            "properties": {
                "valid": {"type": "boolean"},
                "message": {"type": "string"},
                "code": {"type": "string"},
                "items": {"type": "array", "items": {"$ref": "#/definitions/assignments.ItemState"}}
            }
        },
        "assignments.failureDTO": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "message": {"type": "string"},
                "code": {"type": "string"},
                "items": {"type": "array", "items": {"$ref": "#/definitions/assignments.ItemState"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "Parc API",
	Description:      "Assignment acceptance endpoints. The token in the path is the only credential.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
