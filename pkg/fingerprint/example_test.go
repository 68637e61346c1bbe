package fingerprint_test

import (
	"encoding/json"
	"fmt"

	"github.com/matzehuels/chartcn/pkg/fingerprint"
)

func ExampleCanonical() {
	data, err := fingerprint.Canonical(map[string]any{
		"y":     []any{10.0, json.Number("2.50")},
		"label": "Q1",
		"show":  true,
	})
	if err != nil {
		panic(err)
	}
	fmt.Println(string(data))
	// Output: {"label":"Q1","show":true,"y":[10,2.5]}
}

func ExampleHash() {
	fmt.Println(len(fingerprint.Hash([]byte("{}"))) == fingerprint.Size)
	// Output: true
}
