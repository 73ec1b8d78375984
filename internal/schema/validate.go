// Package schema validates corpus documents and index files against their
// JSON Schemas before they are planned for upload. A document that fails
// validation here would poison search results downstream, so validation
// runs as its own pipeline stage.
package schema

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Issue is one leaf validation failure, located by JSON Pointer.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return fmt.Sprintf("%s: %s", i.Path, i.Message)
}

// Validator wraps one compiled schema.
type Validator struct {
	schema  *jsonschema.Schema
	printer *message.Printer
}

// Load compiles the schema at path.
func Load(schemaPath string) (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("schema: compile %s: %w", schemaPath, err)
	}
	return &Validator{
		schema:  schema,
		printer: message.NewPrinter(language.English),
	}, nil
}

// ValidateFile checks one JSON document against the schema and returns
// every leaf failure. A nil slice means the document is valid. The error
// return covers I/O and malformed JSON only.
func (v *Validator) ValidateFile(path string) ([]Issue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("schema: open %s: %w", path, err)
	}
	defer f.Close()

	instance, err := jsonschema.UnmarshalJSON(f)
	if err != nil {
		return nil, fmt.Errorf("schema: parse %s: %w", path, err)
	}
	return v.Validate(instance), nil
}

// Validate checks an already-decoded instance.
func (v *Validator) Validate(instance any) []Issue {
	err := v.schema.Validate(instance)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return []Issue{{Message: err.Error()}}
	}
	var issues []Issue
	v.collect(verr, &issues)
	return issues
}

// collect walks to the leaves of the cause tree; interior nodes restate
// their children.
func (v *Validator) collect(verr *jsonschema.ValidationError, issues *[]Issue) {
	if len(verr.Causes) == 0 {
		*issues = append(*issues, Issue{
			Path:    pointer(verr.InstanceLocation),
			Message: verr.ErrorKind.LocalizedString(v.printer),
		})
		return
	}
	for _, cause := range verr.Causes {
		v.collect(cause, issues)
	}
}

func pointer(location []string) string {
	if len(location) == 0 {
		return ""
	}
	var b strings.Builder
	for _, seg := range location {
		b.WriteByte('/')
		seg = strings.ReplaceAll(seg, "~", "~0")
		seg = strings.ReplaceAll(seg, "/", "~1")
		b.WriteString(seg)
	}
	return b.String()
}
