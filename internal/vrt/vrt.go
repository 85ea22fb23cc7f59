// Package vrt writes OGR virtual-format descriptors that expose a CSV file as
// a point layer built from its longitude and latitude columns.
package vrt

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"

	"mapgen/internal/manifest"
	"mapgen/internal/services"
)

// Column is a data column paired with its significance column.
type Column struct {
	Data         string
	Significance string
	// Type is the OGR attribute type of the data column; empty means Real.
	Type string
}

// Descriptor is the OGRVRTDataSource document.
type Descriptor struct {
	XMLName xml.Name `xml:"OGRVRTDataSource"`
	Layer   Layer    `xml:"OGRVRTLayer"`
}

// Layer describes the single point layer.
type Layer struct {
	Name          string        `xml:"name,attr"`
	Source        SourceRef     `xml:"SrcDataSource"`
	GeometryType  string        `xml:"GeometryType"`
	LayerSRS      string        `xml:"LayerSRS"`
	GeometryField GeometryField `xml:"GeometryField"`
	Fields        []Field       `xml:"Field"`
}

// SourceRef points at the tabular file.
type SourceRef struct {
	RelativeToVRT int    `xml:"relativeToVRT,attr"`
	Path          string `xml:",chardata"`
}

// GeometryField builds points from two columns.
type GeometryField struct {
	Encoding string `xml:"encoding,attr"`
	X        string `xml:"x,attr"`
	Y        string `xml:"y,attr"`
}

// Field declares one exposed attribute. Name is the shapefile-safe attribute
// name, Src the CSV column it reads from.
type Field struct {
	Name string `xml:"name,attr"`
	Src  string `xml:"src,attr"`
	Type string `xml:"type,attr"`
}

// Build assembles the descriptor for layer reading csvName, which must sit
// next to the descriptor file.
func Build(layer, csvName, lonColumn, latColumn string, columns []Column) Descriptor {
	fields := make([]Field, 0, len(columns)*2)
	for _, col := range columns {
		kind := col.Type
		if kind == "" {
			kind = "Real"
		}
		fields = append(fields, Field{Name: manifest.ShapefileField(col.Data), Src: col.Data, Type: kind})
		if col.Significance != "" {
			fields = append(fields, Field{Name: manifest.ShapefileField(col.Significance), Src: col.Significance, Type: "String"})
		}
	}
	return Descriptor{
		Layer: Layer{
			Name:          layer,
			Source:        SourceRef{RelativeToVRT: 1, Path: csvName},
			GeometryType:  "wkbPoint",
			LayerSRS:      "WGS84",
			GeometryField: GeometryField{Encoding: "PointFromColumns", X: lonColumn, Y: latColumn},
			Fields:        fields,
		},
	}
}

// Marshal renders the descriptor as indented XML.
func (d Descriptor) Marshal() ([]byte, error) {
	out, err := xml.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal vrt: %w", err)
	}
	return append(out, '\n'), nil
}

// Write renders d to path.
func Write(path string, d Descriptor) error {
	data, err := d.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return services.Wrap(services.ErrFilesystem, "descriptor", path, "create directory", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return services.Wrap(services.ErrFilesystem, "descriptor", path, "write", err)
	}
	return nil
}
