package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"github.com/ev3sim/ev3sim/sim/relay"
)

// schemaCmd prints the JSON schema of the relay wire messages
var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of relay messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeSchema(cmd.OutOrStdout(), buildSchema())
	},
}

func buildSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
	}

	request := reflector.ReflectFromType(reflect.TypeOf(relay.Request{}))
	request.Version = ""
	request.Title = "Robot Request"
	request.Description = "Message from a robot program to the simulator."

	reply := reflector.ReflectFromType(reflect.TypeOf(relay.Reply{}))
	reply.Version = ""
	reply.Title = "Simulator Reply"
	reply.Description = "Tick update, welcome or verb reply from the simulator."

	return &jsonschema.Schema{
		Version:     jsonschema.Version,
		Title:       fmt.Sprintf("ev3sim relay protocol v%d", relay.ProtocolVersion),
		Description: "Websocket messages between the simulator and out-of-process robots.",
		OneOf:       []*jsonschema.Schema{request, reply},
	}
}

func writeSchema(w io.Writer, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}
