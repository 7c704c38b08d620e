package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// outputJSON prints v as indented JSON on stdout.
func outputJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		FatalError("encoding JSON: %v", err)
	}
	fmt.Println(string(data))
}

// outputJSONError prints an error object to stderr and exits with code 1.
// The hint rides along as its own field rather than being folded into the
// message.
func outputJSONError(err error, hint string) {
	obj := map[string]string{"error": err.Error()}
	if hint != "" {
		obj["hint"] = hint
	}
	data, _ := json.MarshalIndent(obj, "", "  ")
	fmt.Fprintln(os.Stderr, string(data))
	os.Exit(1)
}
