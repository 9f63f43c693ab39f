package plan

import (
	"bytes"
	_ "embed"
)

//go:embed airflow.yaml
var airflowPlan []byte

// Returns the reference plan for the Airflow image.
//
// The embedded plan is validated at decode time; a failure means the binary
// was built from a broken source tree.
func Airflow() Plan {
	p, err := Decode(bytes.NewReader(airflowPlan), FormatYAML)
	if err != nil {
		panic("plan: embedded airflow plan: " + err.Error())
	}
	return p
}
