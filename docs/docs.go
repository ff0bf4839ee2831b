// Package docs 由 swag init 生成，接口注释更新后重新执行 `swag init -g main.go`
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
                "tags": ["系统"],
                "summary": "健康检查",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/quota/modes": {
            "get": {
                "produces": ["application/json"],
                "tags": ["配额规划"],
                "summary": "配额模式列表",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/quota/plan": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["配额规划"],
                "summary": "预览配额方案",
                "parameters": [
                    {
                        "description": "规划请求",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/controllers.PlanRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request"}
                }
            }
        },
        "/projects/{id}/quota-configuration": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["配额配置"],
                "summary": "生成配额配置",
                "parameters": [
                    {"type": "string", "description": "项目ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "Conflict"}
                }
            }
        },
        "/projects/{id}/progress": {
            "get": {
                "produces": ["application/json"],
                "tags": ["回收进度"],
                "summary": "项目回收进度",
                "parameters": [
                    {"type": "string", "description": "项目ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/webhooks/completions": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["网关回调"],
                "summary": "登记完成事件",
                "parameters": [
                    {"type": "string", "description": "回调密钥", "name": "X-API-Key", "in": "header", "required": true}
                ],
                "responses": {
                    "201": {"description": "Created"},
                    "401": {"description": "Unauthorized"},
                    "409": {"description": "Conflict"}
                }
            }
        }
    },
    "definitions": {
        "controllers.PlanRequest": {
            "type": "object",
            "properties": {
                "geography": {"type": "string", "example": "National"},
                "geography_detail": {"type": "string", "example": "NSW"},
                "quota_mode": {"type": "string", "example": "non-interlocking"},
                "target_sample_size": {"type": "integer", "example": 1000}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/swagger/fieldwork-service",
	Schemes:          []string{},
	Title:            "调研执行配额服务 API",
	Description:      "调研项目配额规划、配额分配、回收进度跟踪与样本供应商同步",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
