package tokens

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// recordSchema describes the credential file: a flat object of strings
// with a last_updated timestamp.
const recordSchema = `{
  "type": "object",
  "required": ["last_updated"],
  "properties": {
    "last_updated": {"type": "string", "minLength": 1}
  },
  "additionalProperties": {"type": "string"}
}`

var recordSchemaLoader = gojsonschema.NewStringLoader(recordSchema)

// ValidateRecord checks raw credential file contents against the schema.
func ValidateRecord(data []byte) error {
	result, err := gojsonschema.Validate(recordSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("credential file is not valid JSON: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var problems []string
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return fmt.Errorf("credential file failed validation: %s", strings.Join(problems, "; "))
}
