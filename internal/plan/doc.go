// Package plan defines build plans: ordered, immutable lists of build steps.
//
// A [Plan] names the image it produces and carries its [Step] values in
// declaration order. Order is the only relationship between steps; later
// steps may depend on filesystem or package state established by earlier
// ones, so plans are never reordered.
//
// Plans are loaded from YAML or TOML files, chosen by extension. A reference
// plan reproducing the Airflow image is embedded and returned by [Airflow].
//
// Example plan (YAML):
//
//	name: airflow
//	steps:
//	  - kind: set-base
//	    image: python:3.5-alpine
//	  - kind: install-package
//	    name: apache-airflow
//	    version: 1.10.2
//	  - kind: set-entrypoint
//	    entrypoint: /entrypoint.sh
package plan
