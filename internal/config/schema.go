package config

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// settingsSchema is the JSON Schema the settings file must satisfy before it
// is unmarshalled. Structural errors are reported with the failing path so a
// hand-edited file can be fixed quickly.
const settingsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "engine": {
      "type": "object",
      "properties": {
        "provider": {"type": "string", "enum": ["anthropic", "openai"]},
        "model": {"type": "string"},
        "api_key": {"type": "string"},
        "system_prompt": {"type": "string"},
        "max_retries": {"type": "integer", "minimum": 0}
      }
    },
    "permissions": {
      "type": "object",
      "properties": {
        "auto_approve_writes": {"type": "boolean"},
        "require_shell_approval": {"type": "boolean"},
        "always_allowed_tools": {"type": "array", "items": {"type": "string"}},
        "command_allowlist": {"type": "array", "items": {"type": "string"}}
      }
    },
    "limits": {
      "type": "object",
      "properties": {
        "per_tool": {
          "type": "object",
          "additionalProperties": {"type": "integer", "minimum": 1}
        },
        "aggregate": {"type": "integer", "minimum": 0}
      }
    },
    "history": {
      "type": "object",
      "properties": {
        "path": {"type": "string"},
        "retention_days": {"type": "integer", "minimum": 0},
        "prune_schedule": {"type": "string"}
      }
    },
    "logging": {
      "type": "object",
      "properties": {
        "level": {"type": "string", "enum": ["trace", "debug", "info", "warn", "error"]},
        "file": {"type": "string"},
        "redaction": {"type": "boolean"}
      }
    },
    "bridge": {
      "type": "object",
      "properties": {
        "host": {"type": "string"},
        "port": {"type": "integer", "minimum": 1, "maximum": 65535},
        "prompt_timeout": {"type": "integer", "minimum": 1}
      }
    },
    "metrics": {
      "type": "object",
      "properties": {
        "enabled": {"type": "boolean"},
        "port": {"type": "integer", "minimum": 1, "maximum": 65535}
      }
    },
    "vault_dir": {"type": "string"},
    "data_dir": {"type": "string"}
  }
}`

// validateSchema checks raw settings JSON against the schema.
func validateSchema(raw []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(settingsSchema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
	}
	return fmt.Errorf("settings file is invalid: %s", strings.Join(problems, "; "))
}
