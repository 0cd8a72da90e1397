// Command generate-schema writes the JSON schema of the gpibgate
// configuration file, for editor completion and CI checks of config files.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/marmos91/gpibgate/pkg/config"
)

// durationPattern matches the Go duration strings accepted in config files,
// e.g. "30s" or "1m30s".
const durationPattern = `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`

func main() {
	output := flag.String("o", "config.schema.json", "output file")
	flag.Parse()

	data, err := generateSchema()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating schema: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(*output, data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing schema file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("JSON schema written to %s\n", *output)
}

func generateSchema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		FieldNameTag:              "mapstructure",
		Mapper:                    mapDuration,
	}

	schema := reflector.Reflect(&config.Config{})
	schema.Title = "gpibgate Configuration"
	schema.Description = "Configuration schema for the gpibgate VXI-11 to GPIB gateway"
	schema.Version = "1.0.0"

	return json.MarshalIndent(schema, "", "  ")
}

// mapDuration describes time.Duration fields as the strings the config
// loader decodes, instead of nanosecond integers.
func mapDuration(t reflect.Type) *jsonschema.Schema {
	if t != reflect.TypeOf(time.Duration(0)) {
		return nil
	}
	return &jsonschema.Schema{Type: "string", Pattern: durationPattern}
}
