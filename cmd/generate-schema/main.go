package main

import (
	"flag"
	"os"

	"github.com/m-lab/go/cloud/bqx"
	"github.com/m-lab/go/rtx"
	"github.com/m-lab/httpspeed/pkg/speedtest/model"

	"cloud.google.com/go/bigquery"
)

var (
	speedtest1Schema       string
	speedtest1ClientSchema string
)

func init() {
	flag.StringVar(&speedtest1Schema, "speedtest1", "/var/spool/datatypes/speedtest1.json", "filename to write speedtest1 schema")
	flag.StringVar(&speedtest1ClientSchema, "speedtest1-client", "/var/spool/datatypes/speedtest1_client.json", "filename to write speedtest1 client schema")
}

// writeSchema infers the BigQuery schema of v and writes it to path.
func writeSchema(v interface{}, name, path string) {
	sch, err := bigquery.InferSchema(v)
	rtx.Must(err, "failed to generate %s schema", name)
	sch = bqx.RemoveRequired(sch)
	b, err := sch.ToJSONFields()
	rtx.Must(err, "failed to marshal %s schema", name)
	err = os.WriteFile(path, b, 0o644)
	rtx.Must(err, "failed to write %s schema", name)
}

func main() {
	flag.Parse()
	// Generate and save schemas for autoloading.
	writeSchema(model.ArchivalData{}, "speedtest1", speedtest1Schema)
	writeSchema(model.ClientArchivalData{}, "speedtest1 client", speedtest1ClientSchema)
}
