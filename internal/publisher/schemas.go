package publisher

const runCompletedSchema = `{
  "type": "object",
  "title": "RunCompleted",
  "properties": {
    "run_id": {"type": "string"},
    "window_start": {"type": "string", "format": "date-time"},
    "window_end": {"type": "string", "format": "date-time"},
    "status": {"type": "string", "enum": ["published", "published_with_warnings", "rejected"]},
    "estimate_count": {"type": "integer"},
    "violations": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "kind": {"type": "string"},
          "detail": {"type": "string"}
        },
        "required": ["kind", "detail"],
        "additionalProperties": false
      }
    },
    "completed_at": {"type": "string", "format": "date-time"}
  },
  "required": ["run_id", "window_start", "window_end", "status", "estimate_count", "violations", "completed_at"],
  "additionalProperties": false
}`
