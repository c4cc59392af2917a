// Command schema writes a JSON schema describing every payload that crosses
// the signaling socket and the data channel.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"arena/protocol"
)

// payloads maps each envelope type tag to its payload.
type payloads struct {
	Move             protocol.Move               `json:"move" jsonschema:"description=Client to server: retarget the player"`
	SnapshotResponse protocol.ArenaState         `json:"snapshotResponse" jsonschema:"description=Server to client: full arena state"`
	Welcome          protocol.Welcome            `json:"welcome" jsonschema:"description=First signaling frame carrying the connection id"`
	Offer            protocol.SessionDescription `json:"offer" jsonschema:"description=Client SDP offer"`
	Answer           protocol.SessionDescription `json:"answer" jsonschema:"description=Server SDP answer"`
	Candidate        protocol.Candidate          `json:"candidate" jsonschema:"description=Trickled ICE candidate in either direction"`
	Error            protocol.Error              `json:"error" jsonschema:"description=Signaling failure report"`
}

func main() {
	var outPath string
	flag.StringVar(&outPath, "out", "", "path to write the JSON schema")
	flag.Parse()

	if outPath == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	if err := writeSchema(outPath, buildSchema()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
		os.Exit(1)
	}
}

func buildSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(new(payloads))
	schema.Title = "Arena wire protocol"
	schema.Description = "Payloads of {type, payload} envelopes, keyed by type"
	return schema
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}
	return os.Rename(tmpPath, outPath)
}
