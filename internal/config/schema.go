package config

// Schema is the JSON schema of the templog config file
const Schema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "storage": {
      "type": "object",
      "properties": {
        "data_dir": {"type": "string"},
        "file": {"type": "string", "minLength": 1},
        "compact_schedule": {"type": "string"}
      },
      "additionalProperties": false
    },
    "sampler": {
      "type": "object",
      "properties": {
        "source": {"type": "string", "enum": ["thermal", "file", "static"]},
        "path": {"type": "string"},
        "interval": {"type": "string"},
        "schedule": {"type": "string"},
        "static_value": {"type": "number"}
      },
      "additionalProperties": false
    },
    "clock": {
      "type": "object",
      "properties": {
        "sync_timeout": {"type": "string"},
        "min_valid_time": {"type": "string"}
      },
      "additionalProperties": false
    },
    "http": {
      "type": "object",
      "properties": {
        "enabled": {"type": "boolean"},
        "host": {"type": "string"},
        "port": {"type": "integer", "minimum": 0, "maximum": 65535},
        "auth_token": {"type": "string"},
        "rate_limit": {"type": "integer", "minimum": 0}
      },
      "additionalProperties": false
    },
    "archive": {
      "type": "object",
      "properties": {
        "enabled": {"type": "boolean"},
        "path": {"type": "string"}
      },
      "additionalProperties": false
    },
    "logging": {
      "type": "object",
      "properties": {
        "level": {"type": "string", "enum": ["debug", "info", "warn", "error"]},
        "file": {"type": "string"},
        "max_size": {"type": "integer", "minimum": 0},
        "max_age": {"type": "integer", "minimum": 0},
        "compress": {"type": "boolean"},
        "redaction": {"type": "boolean"},
        "audit_file": {"type": "string"}
      },
      "additionalProperties": false
    }
  },
  "additionalProperties": false
}`
