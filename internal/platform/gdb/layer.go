package gdb

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lukeroth/gdal"

	"github.com/parcelworks/landgrid/internal/ingest"
	"github.com/parcelworks/landgrid/internal/schema"
)

// LayerInfo is the per-layer metadata surfaced by Inspect.
type LayerInfo struct {
	Name         string
	CRS          string
	Bounds       *[4]float64 // minx, miny, maxx, maxy
	FeatureCount int
	Fields       []string
	Error        string // set when this layer could not be inspected
}

// Info describes a geodatabase container.
type Info struct {
	Layers       []string
	DefaultLayer string
	LayerInfo    map[string]LayerInfo
}

// Inspect lists the layers of a geodatabase with CRS, bounds and feature
// counts. A layer that cannot be read gets its error recorded against its
// name; inspection of the remaining layers continues.
func Inspect(gdbPath string, log *slog.Logger) (*Info, error) {
	ds, err := openVector(gdbPath)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	count := ds.LayerCount()
	if count == 0 {
		return nil, fmt.Errorf("no layers found in geodatabase %s", gdbPath)
	}

	info := &Info{LayerInfo: make(map[string]LayerInfo, count)}
	for i := 0; i < count; i++ {
		layer := ds.LayerByIndex(i)
		name := layer.Name()
		info.Layers = append(info.Layers, name)

		li, err := inspectLayer(layer, name)
		if err != nil {
			log.Error("layer inspection failed", "layer", name, "error", err)
			info.LayerInfo[name] = LayerInfo{Name: name, Error: err.Error()}
			continue
		}
		log.Info("inspected layer",
			"layer", name,
			"features", li.FeatureCount,
			"crs", li.CRS,
		)
		info.LayerInfo[name] = li
	}

	info.DefaultLayer = info.Layers[0]
	return info, nil
}

func inspectLayer(layer gdal.Layer, name string) (LayerInfo, error) {
	li := LayerInfo{Name: name, CRS: crsIdentifier(layer.SpatialReference())}

	fc, ok := layer.FeatureCount(true)
	if !ok {
		return li, fmt.Errorf("cannot count features of layer %s", name)
	}
	li.FeatureCount = fc

	if env, err := layer.Extent(true); err == nil {
		li.Bounds = &[4]float64{env.MinX(), env.MinY(), env.MaxX(), env.MaxY()}
	}

	defn := layer.Definition()
	for i := 0; i < defn.FieldCount(); i++ {
		li.Fields = append(li.Fields, defn.FieldDefinition(i).Name())
	}
	return li, nil
}

// Validate reports whether a path is a readable geodatabase with at least
// one layer, with a reason when it is not.
func Validate(gdbPath string) (bool, string) {
	fi, err := os.Stat(gdbPath)
	if err != nil {
		return false, fmt.Sprintf("geodatabase path does not exist: %v", err)
	}
	if !fi.IsDir() {
		return false, "geodatabase path is not a directory"
	}

	ds, err := openVector(gdbPath)
	if err != nil {
		return false, fmt.Sprintf("cannot open geodatabase: %v", err)
	}
	defer ds.Close()

	if ds.LayerCount() == 0 {
		return false, "geodatabase has no layers"
	}
	return true, ""
}

// LayerSource streams features from one geodatabase layer as pipeline rows.
// Geometries are reprojected into the target coordinate system when the
// layer declares a different one, then serialized to well-known text. It
// implements ingest.Source.
type LayerSource struct {
	ds        gdal.Dataset
	layer     gdal.Layer
	columns   []string
	remaining int
	rowNum    int64
	transform *gdal.CoordinateTransform
	log       *slog.Logger
}

// OpenLayer opens one layer for streaming. A layer without a declared CRS is
// assumed to already be in the target system (logged as a warning); any
// other CRS sets up a per-feature reprojection.
func OpenLayer(gdbPath, layerName string, log *slog.Logger) (*LayerSource, error) {
	ds, err := openVector(gdbPath)
	if err != nil {
		return nil, err
	}

	layer := ds.LayerByName(layerName)
	count, ok := layer.FeatureCount(true)
	if !ok {
		ds.Close()
		return nil, fmt.Errorf("layer %q not found in %s", layerName, gdbPath)
	}

	src := &LayerSource{ds: ds, layer: layer, remaining: count, log: log}

	defn := layer.Definition()
	for i := 0; i < defn.FieldCount(); i++ {
		src.columns = append(src.columns, defn.FieldDefinition(i).Name())
	}
	// The geometry columns are synthesized per feature, not stored fields.
	src.columns = append(src.columns, schema.GeometryWKT, schema.GeometryType)

	srcSR := layer.SpatialReference()
	if !hasCRS(srcSR) {
		log.Warn("layer has no declared CRS, assuming target system",
			"layer", layerName, "target_epsg", TargetEPSG)
	} else {
		dstSR := gdal.CreateSpatialReference("")
		if err := dstSR.FromEPSG(TargetEPSG); err != nil {
			ds.Close()
			return nil, fmt.Errorf("build target spatial reference: %w", err)
		}
		if !srcSR.IsSame(dstSR) {
			ct := gdal.CreateCoordinateTransform(srcSR, dstSR)
			src.transform = &ct
			log.Info("layer will be reprojected",
				"layer", layerName,
				"source_crs", crsIdentifier(srcSR),
				"target_epsg", TargetEPSG,
			)
		}
	}

	layer.ResetReading()
	return src, nil
}

// Columns lists attribute field names plus the synthesized geometry columns.
func (s *LayerSource) Columns() []string { return s.columns }

// Next returns the next feature as a row. Features with null or empty
// geometry come back with Row.Err set so the pipeline counts them as row
// failures and keeps going.
func (s *LayerSource) Next() (ingest.Row, error) {
	if s.remaining <= 0 {
		return ingest.Row{}, io.EOF
	}
	s.remaining--
	s.rowNum++

	feature := s.layer.NextFeature()
	defer feature.Destroy()

	geom := feature.Geometry()
	if geom.IsEmpty() {
		return ingest.Row{
			Number: s.rowNum,
			Err:    fmt.Errorf("feature %d has null or empty geometry", s.rowNum),
		}, nil
	}

	if s.transform != nil {
		if err := geom.Transform(*s.transform); err != nil {
			return ingest.Row{
				Number: s.rowNum,
				Err:    fmt.Errorf("reproject feature %d: %w", s.rowNum, err),
			}, nil
		}
	}

	wkt, err := geom.ToWKT()
	if err != nil {
		return ingest.Row{
			Number: s.rowNum,
			Err:    fmt.Errorf("serialize feature %d geometry: %w", s.rowNum, err),
		}, nil
	}

	fields := make(map[string]string, len(s.columns))
	for i := 0; i < feature.FieldCount(); i++ {
		if !feature.IsFieldSet(i) {
			continue
		}
		fields[s.columns[i]] = feature.FieldAsString(i)
	}
	fields[schema.GeometryWKT] = wkt
	fields[schema.GeometryType] = GeometryTypeLabel(wkt)

	return ingest.Row{Number: s.rowNum, Fields: fields}, nil
}

// Close releases the underlying dataset.
func (s *LayerSource) Close() error {
	s.ds.Close()
	return nil
}

// GeometryTypeLabel derives the conventional geometry type label from a WKT
// string, e.g. "MULTIPOLYGON ((...))" -> "MultiPolygon".
func GeometryTypeLabel(wkt string) string {
	head, _, _ := strings.Cut(strings.TrimSpace(wkt), "(")
	head = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(head), "Z"))
	head = strings.TrimSpace(strings.TrimSuffix(head, "M"))

	switch strings.ToUpper(head) {
	case "POINT":
		return "Point"
	case "LINESTRING":
		return "LineString"
	case "POLYGON":
		return "Polygon"
	case "MULTIPOINT":
		return "MultiPoint"
	case "MULTILINESTRING":
		return "MultiLineString"
	case "MULTIPOLYGON":
		return "MultiPolygon"
	case "GEOMETRYCOLLECTION":
		return "GeometryCollection"
	}
	return head
}

func openVector(path string) (gdal.Dataset, error) {
	ds, err := gdal.OpenEx(path, gdal.OFVector|gdal.OFReadOnly, nil, nil, nil)
	if err != nil {
		return gdal.Dataset{}, fmt.Errorf("open geodatabase %s: %w", path, err)
	}
	return ds, nil
}

// hasCRS reports whether a spatial reference carries any definition.
func hasCRS(sr gdal.SpatialReference) bool {
	wkt, err := sr.ToWKT()
	return err == nil && strings.TrimSpace(wkt) != ""
}

// crsIdentifier renders a spatial reference as "AUTHORITY:CODE" when known.
func crsIdentifier(sr gdal.SpatialReference) string {
	if !hasCRS(sr) {
		return "Unknown"
	}
	name := sr.AuthorityName("")
	code := sr.AuthorityCode("")
	if name != "" && code != "" {
		return name + ":" + code
	}
	return "Unknown"
}
