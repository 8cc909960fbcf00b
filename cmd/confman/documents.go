package main

import (
	"fmt"
	"os"

	"github.com/confman-io/confman/internal/configtree"
	"github.com/confman-io/confman/internal/format"
	"github.com/confman-io/confman/internal/merge"
	"github.com/confman-io/confman/internal/schema"
)

// readDocument parses one configuration file. With formatName empty the
// format is detected from the file extension.
func readDocument(path, formatName string) (*format.Document, error) {
	var f format.Format
	var err error
	if formatName != "" {
		f, err = format.ParseFormat(formatName)
	} else {
		f, err = format.Detect(path)
	}
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return format.Parse(raw, f, path)
}

// readSources parses the given files into merge sources, in argument
// order (lowest precedence first).
func readSources(paths []string, formatName string) ([]merge.Source, error) {
	sources := make([]merge.Source, 0, len(paths))
	for _, path := range paths {
		doc, err := readDocument(path, formatName)
		if err != nil {
			return nil, err
		}
		sources = append(sources, merge.Source{Name: path, Tree: doc.Root})
	}
	return sources, nil
}

// writeTree serializes a tree in the named format to stdout, or to the
// given file when out is non-empty.
func writeTree(tree *configtree.Value, formatName, out string) error {
	f, err := format.ParseFormat(formatName)
	if err != nil {
		return err
	}
	data, err := format.Serialize(tree, f)
	if err != nil {
		return err
	}

	if out == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(out, data, 0600)
}

// loadSchema reads a schema definition, itself a configuration document
// in any supported format.
func loadSchema(path string) (*schema.Schema, error) {
	doc, err := readDocument(path, "")
	if err != nil {
		return nil, fmt.Errorf("reading schema: %w", err)
	}
	s, err := schema.Load(doc.Root)
	if err != nil {
		return nil, fmt.Errorf("loading schema %s: %w", path, err)
	}
	return s, nil
}
