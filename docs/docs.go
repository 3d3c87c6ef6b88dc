// Package docs holds the OpenAPI document served under /swagger.
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
    "paths": {
        "/printer/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Printer"],
                "summary": "Printer status",
                "parameters": [
                    {"type": "string", "description": "Printer address, defaults to the configured printer", "name": "device", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Status retrieved", "schema": {"$ref": "#/definitions/utils.APIResponse"}},
                    "400": {"description": "Unsupported address", "schema": {"$ref": "#/definitions/utils.APIResponse"}},
                    "409": {"description": "Printer busy", "schema": {"$ref": "#/definitions/utils.APIResponse"}},
                    "504": {"description": "Printer stopped responding", "schema": {"$ref": "#/definitions/utils.APIResponse"}}
                }
            }
        },
        "/printer/print": {
            "post": {
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["Printer"],
                "summary": "Print labels",
                "parameters": [
                    {"type": "file", "description": "Label images, printed in order", "name": "images", "in": "formData", "required": true},
                    {"type": "string", "description": "Printer address", "name": "device", "in": "formData"},
                    {"type": "integer", "default": 1, "description": "Copies of the whole image set", "name": "copies", "in": "formData"},
                    {"type": "integer", "default": 128, "description": "Luminance below which a pixel prints black", "name": "threshold", "in": "formData"},
                    {"type": "boolean", "description": "Cut after the pages of every copy", "name": "autocut", "in": "formData"},
                    {"type": "integer", "description": "Pages between cuts", "name": "autocut_every", "in": "formData"},
                    {"type": "integer", "description": "Feed margin in dots", "name": "margin", "in": "formData"},
                    {"type": "string", "description": "continuous, die-cut or a numeric code", "name": "media_type", "in": "formData"},
                    {"type": "integer", "description": "Media width in mm", "name": "media_width", "in": "formData"},
                    {"type": "integer", "description": "Media length in mm", "name": "media_length", "in": "formData"},
                    {"type": "boolean", "description": "Give priority to print quality", "name": "quality", "in": "formData"},
                    {"type": "boolean", "description": "Dither instead of thresholding", "name": "dither", "in": "formData"},
                    {"type": "boolean", "description": "Scale images down to the print head width", "name": "fit", "in": "formData"}
                ],
                "responses": {
                    "200": {"description": "Job printed", "schema": {"$ref": "#/definitions/utils.APIResponse"}},
                    "400": {"description": "Invalid request", "schema": {"$ref": "#/definitions/utils.APIResponse"}},
                    "409": {"description": "Printer busy", "schema": {"$ref": "#/definitions/utils.APIResponse"}},
                    "422": {"description": "Image cannot be printed", "schema": {"$ref": "#/definitions/utils.APIResponse"}},
                    "502": {"description": "Printer reported error(s)", "schema": {"$ref": "#/definitions/utils.APIResponse"}},
                    "504": {"description": "Printer stopped responding", "schema": {"$ref": "#/definitions/utils.APIResponse"}}
                }
            }
        },
        "/jobs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Jobs"],
                "summary": "List print jobs",
                "parameters": [
                    {"type": "integer", "default": 1, "name": "page", "in": "query"},
                    {"type": "integer", "default": 20, "name": "per_page", "in": "query"},
                    {"type": "string", "name": "device", "in": "query"},
                    {"enum": ["PENDING", "PRINTING", "SUCCESS", "FAILED", "TIMEOUT"], "type": "string", "name": "status", "in": "query"},
                    {"type": "string", "description": "RFC3339", "name": "start_date", "in": "query"},
                    {"type": "string", "description": "RFC3339", "name": "end_date", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Jobs retrieved", "schema": {"$ref": "#/definitions/utils.APIResponse"}}
                }
            }
        },
        "/jobs/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Jobs"],
                "summary": "Get print job",
                "parameters": [
                    {"type": "string", "description": "Job ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Job retrieved", "schema": {"$ref": "#/definitions/utils.APIResponse"}},
                    "404": {"description": "Job not found", "schema": {"$ref": "#/definitions/utils.APIResponse"}}
                }
            }
        },
        "/discovery/scan": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Discovery"],
                "summary": "Scan for printers",
                "parameters": [
                    {"enum": ["all", "chardev", "usb", "serial", "tcp"], "type": "string", "default": "all", "name": "type", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Device scan completed", "schema": {"$ref": "#/definitions/utils.APIResponse"}}
                }
            }
        },
        "/discovery/scanners": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Discovery"],
                "summary": "List scanners",
                "responses": {
                    "200": {"description": "Scanners retrieved", "schema": {"$ref": "#/definitions/utils.APIResponse"}}
                }
            }
        }
    },
    "definitions": {
        "utils.APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "details": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "utils.APIResponse": {
            "type": "object",
            "properties": {
                "data": {},
                "error": {"$ref": "#/definitions/utils.APIError"},
                "message": {"type": "string"},
                "request_id": {"type": "string"},
                "success": {"type": "boolean"},
                "timestamp": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "QL Label Printer Service API",
	Description:      "Prints raster labels on Brother QL printers and reports their status.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
