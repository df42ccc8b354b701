// Package docs registers the OpenAPI 2.0 description served at /swagger/*.
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
        "/referrals/qualifying-actions": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Evaluates the referral bonus for an account whose payment has been confirmed. Requires role=payments.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["referrals"],
                "summary": "Process qualifying action",
                "parameters": [
                    {
                        "description": "Qualifying event",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/QualifyingActionRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/QualifyingActionResult"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/accounts/{accountId}/referrals": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["accounts"],
                "summary": "Referral summary of the caller",
                "parameters": [
                    {"type": "string", "description": "Account ID", "name": "accountId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ReferralSummary"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/accounts/{accountId}/referral-qr": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["image/png"],
                "tags": ["accounts"],
                "summary": "Referral link QR code",
                "parameters": [
                    {"type": "string", "description": "Account ID", "name": "accountId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "PNG image; the link is returned in X-Referral-Link", "schema": {"type": "file"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/accounts/{accountId}/ratings": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["accounts"],
                "summary": "Rate a profile",
                "parameters": [
                    {"type": "string", "description": "Rated account ID", "name": "accountId", "in": "path", "required": true},
                    {
                        "description": "Rating",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/SubmitRatingRequest"}
                    }
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/RatingResult"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "409": {"description": "Already rated", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "details": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "QualifyingActionRequest": {
            "type": "object",
            "required": ["accountId", "eventId"],
            "properties": {
                "accountId": {"type": "string"},
                "eventId": {"type": "string"}
            }
        },
        "QualifyingActionResult": {
            "type": "object",
            "properties": {
                "accountId": {"type": "string"},
                "outcome": {"type": "string", "enum": ["credited", "already_processed", "not_referred", "referrer_not_found"]},
                "referrerId": {"type": "string"},
                "bonusAmount": {"type": "integer"},
                "attempts": {"type": "integer"},
                "duplicateEvent": {"type": "boolean"}
            }
        },
        "ReferralEntry": {
            "type": "object",
            "properties": {
                "referredAccountId": {"type": "string"},
                "referredFullName": {"type": "string"}
            }
        },
        "ReferralSummary": {
            "type": "object",
            "properties": {
                "accountId": {"type": "string"},
                "referralCode": {"type": "string"},
                "balance": {"type": "integer"},
                "pendingReferrals": {"type": "array", "items": {"$ref": "#/definitions/ReferralEntry"}},
                "successfulReferrals": {"type": "array", "items": {"$ref": "#/definitions/ReferralEntry"}},
                "pendingCount": {"type": "integer"},
                "successfulCount": {"type": "integer"}
            }
        },
        "SubmitRatingRequest": {
            "type": "object",
            "required": ["score"],
            "properties": {
                "score": {"type": "integer", "minimum": 1, "maximum": 5},
                "comment": {"type": "string", "maxLength": 500}
            }
        },
        "RatingResult": {
            "type": "object",
            "properties": {
                "profileId": {"type": "string"},
                "ratingAverage": {"type": "number"},
                "ratingCount": {"type": "integer"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Tradepost Referral Ledger API",
	Description:      "Referral bonus ledger, referral sharing and profile ratings.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
