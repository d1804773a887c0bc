package llm

// Schema helpers for building JSON Schema tool definitions.

// ObjectSchema creates an object schema with the given properties.
func ObjectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// StringProperty creates a string property with a description.
func StringProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

// StringEnumProperty creates a string property with allowed values.
func StringEnumProperty(description string, values ...string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
		"enum":        values,
	}
}

// NumberProperty creates a number property with a description.
func NumberProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "number",
		"description": description,
	}
}

// RememberToolSchema is the input schema of the remember tool.
func RememberToolSchema() map[string]interface{} {
	return ObjectSchema(map[string]interface{}{
		"content": StringProperty("The fact, preference, or event to remember, stated concisely."),
		"context": StringProperty("Optional: where this came from (e.g., the topic under discussion)."),
		"type": StringEnumProperty(
			"Optional: suggested memory type. The system may override this.",
			"semantic", "episodic", "procedural",
		),
		"importance": NumberProperty("Optional: suggested salience in [0,1]. The system may override this."),
	}, "content")
}
