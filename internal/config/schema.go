package config

import (
	"fmt"
	"os"

	"github.com/xeipuuv/gojsonschema"
)

// ConfigSchema is the JSON schema a config file must satisfy before it
// is unmarshalled. Catching shape errors here keeps viper's mapstructure
// failures out of user-facing messages.
const ConfigSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "providers": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "provider": {"type": "string", "enum": ["anthropic", "openai"]},
          "api_key": {"type": "string"}
        },
        "required": ["provider"]
      }
    },
    "agents": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "role": {"type": "string"},
          "instructions": {"type": "array", "items": {"type": "string"}},
          "model": {"type": "string"},
          "temperature": {"type": "number", "minimum": 0, "maximum": 2},
          "max_tokens": {"type": "integer", "minimum": 1},
          "max_retries": {"type": "integer", "minimum": 0},
          "backends": {
            "type": "array",
            "items": {"type": "string", "enum": ["web_search", "financial_data"]}
          }
        },
        "required": ["name"]
      }
    },
    "team": {
      "type": "object",
      "properties": {
        "name": {"type": "string"},
        "instructions": {"type": "array", "items": {"type": "string"}},
        "merge_mode": {"type": "string", "enum": ["template", "model"]},
        "model": {"type": "string"},
        "timeout_seconds": {"type": "integer", "minimum": 0}
      }
    },
    "search": {
      "type": "object",
      "properties": {
        "endpoint": {"type": "string"},
        "top_n": {"type": "integer", "minimum": 1}
      }
    },
    "finance": {
      "type": "object",
      "properties": {
        "endpoint": {"type": "string"}
      }
    },
    "logging": {
      "type": "object",
      "properties": {
        "level": {"type": "string", "enum": ["debug", "info", "warn", "error"]},
        "file": {"type": "string"},
        "max_size": {"type": "integer"},
        "max_age": {"type": "integer"},
        "compress": {"type": "boolean"},
        "redaction": {"type": "boolean"}
      }
    },
    "gateway": {
      "type": "object",
      "properties": {
        "port": {"type": "integer", "minimum": 1, "maximum": 65535},
        "host": {"type": "string"},
        "shared_secret": {"type": "string"}
      }
    },
    "data_dir": {"type": "string"}
  }
}`

// ValidateSchema checks a config file against ConfigSchema.
func ValidateSchema(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	schemaLoader := gojsonschema.NewStringLoader(ConfigSchema)
	documentLoader := gojsonschema.NewBytesLoader(data)
	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		var errMsg string
		for i, err := range result.Errors() {
			if i > 0 {
				errMsg += "; "
			}
			errMsg += err.String()
		}
		return fmt.Errorf("invalid config: %s", errMsg)
	}

	return nil
}
