package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/razeghi71/csvt/config"
	"github.com/razeghi71/csvt/functions"
	"github.com/razeghi71/csvt/loader"
	"github.com/razeghi71/csvt/logging"
	"github.com/razeghi71/csvt/transform"
	"github.com/razeghi71/csvt/writer"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("csvt", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath   = fs.String("config", "", "transformation config file (YAML or JSON), required")
		limit        = fs.Int("limit", 0, "stop after this many input rows (0 = no limit)")
		delimiter    = fs.String("delimiter", "", `input field delimiter (default ",", "\t" for .tsv)`)
		outDelimiter = fs.String("out-delimiter", "", `output field delimiter (default ",", "\t" for .tsv)`)
		inEncoding   = fs.String("in-encoding", "utf-8", "input text encoding")
		outEncoding  = fs.String("out-encoding", "utf-8", "output text encoding")
		logLevel     = fs.String("log-level", "info", "log level: debug, info, warn, error")
		logFormat    = fs.String("log-format", "text", "log format: text, json")
	)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: csvt -config <file> [flags] <input> <output>")
		fmt.Fprintln(stderr, "example: csvt -config users.yaml users.csv adults.csv")
		fmt.Fprintln(stderr, `output "-" writes CSV to stdout`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *configPath == "" || fs.NArg() != 2 {
		fs.Usage()
		return 1
	}

	inDelim, err := loader.ParseDelimiter(*delimiter)
	if err != nil {
		fmt.Fprintf(stderr, "error: -delimiter: %v\n", err)
		return 1
	}
	outDelim, err := loader.ParseDelimiter(*outDelimiter)
	if err != nil {
		fmt.Fprintf(stderr, "error: -out-delimiter: %v\n", err)
		return 1
	}

	logger := logging.Setup(*logLevel, *logFormat)

	doc, err := config.Load(*configPath, nil)
	if err != nil {
		fmt.Fprintf(stderr, "config error: %v\n", err)
		return 1
	}
	t, err := doc.Build(functions.Default(), logger)
	if err != nil {
		fmt.Fprintf(stderr, "config error: %v\n", err)
		return 1
	}

	src, err := loader.Open(fs.Arg(0), loader.Options{Delimiter: inDelim, Encoding: *inEncoding})
	if err != nil {
		fmt.Fprintf(stderr, "load error: %v\n", err)
		return 1
	}
	defer src.Close()

	sink, err := writer.Create(fs.Arg(1), writer.Options{Delimiter: outDelim, Encoding: *outEncoding})
	if err != nil {
		fmt.Fprintf(stderr, "write error: %v\n", err)
		return 1
	}

	if _, err = t.Run(src, sink, transform.RunOptions{Limit: *limit}); err != nil {
		writer.Abort(sink)
	} else {
		err = sink.Close()
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
