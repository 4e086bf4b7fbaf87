package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
)

// FieldErrors maps a request field to what is wrong with it.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + fe[k]
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

const subscriptionSchema = `{
  "type": "object",
  "required": ["event", "url"],
  "properties": {
    "event": {"type": "string", "minLength": 1},
    "url": {"type": "string", "minLength": 1, "format": "uri"},
    "event_filter": {"type": ["string", "null"]}
  }
}`

const publicationSchema = `{
  "type": "object",
  "required": ["event", "payload"],
  "properties": {
    "event": {"type": "string", "minLength": 1},
    "payload": {"type": "object"}
  }
}`

var (
	subscriptionRequest = mustCompile("herald://schema/subscription", subscriptionSchema)
	publicationRequest  = mustCompile("herald://schema/publication", publicationSchema)
)

// errMalformed is returned when a body is not JSON at all.
var errMalformed = errors.New("invalid request body")

func mustCompile(url, schema string) *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schema))
	if err != nil {
		panic(fmt.Sprintf("api: parse schema %s: %v", url, err))
	}
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(url, doc); err != nil {
		panic(fmt.Sprintf("api: add schema %s: %v", url, err))
	}
	return c.MustCompile(url)
}

// readValidated reads the request body and validates it against schema. It
// returns the raw body, errMalformed, FieldErrors, or a read error.
func readValidated(body io.Reader, schema *jsonschema.Schema) ([]byte, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, errMalformed
	}
	if err := schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return nil, fieldErrors(ve)
		}
		return nil, err
	}
	return raw, nil
}

// fieldErrors flattens a validation error tree into one message per field.
func fieldErrors(ve *jsonschema.ValidationError) FieldErrors {
	fields := FieldErrors{}
	collect(ve, fields)
	if len(fields) == 0 {
		fields["body"] = "invalid"
	}
	return fields
}

func collect(ve *jsonschema.ValidationError, fields FieldErrors) {
	if len(ve.Causes) > 0 {
		for _, c := range ve.Causes {
			collect(c, fields)
		}
		return
	}

	field := strings.Join(ve.InstanceLocation, ".")
	switch k := ve.ErrorKind.(type) {
	case *kind.Required:
		for _, name := range k.Missing {
			fields[join(field, name)] = "required"
		}
	case *kind.AdditionalProperties:
		for _, name := range k.Properties {
			fields[join(field, name)] = "unknown field"
		}
	case *kind.Type:
		fields[orBody(field)] = "must be " + article(k.Want)
	case *kind.MinLength:
		fields[orBody(field)] = "must not be empty"
	case *kind.Format:
		fields[orBody(field)] = "must be a valid " + k.Want
	default:
		fields[orBody(field)] = "invalid"
	}
}

func join(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

func orBody(field string) string {
	if field == "" {
		return "body"
	}
	return field
}

func article(types []string) string {
	words := make([]string, len(types))
	for i, t := range types {
		switch t {
		case "object", "array", "integer":
			words[i] = "an " + t
		case "null":
			words[i] = "null"
		default:
			words[i] = "a " + t
		}
	}
	return strings.Join(words, " or ")
}
