package config

const (
	defaultLonColumn       = "LON"
	defaultLatColumn       = "LAT"
	defaultEncoding        = "utf-8"
	defaultFieldType       = "Real"
	defaultBoundaryPattern = "*.shp"
	defaultLayerMarker     = "$$LAYERS$$"
	defaultMaxDimension    = 800
	defaultInterpolateSize = 2000
	defaultSRS             = "EPSG:4326"
	defaultFormat          = "image/png"
	defaultHighClass       = 2
	defaultModerateClass   = 1
	defaultOgr2ogr         = "ogr2ogr"
	defaultGDALRasterize   = "gdal_rasterize"
	defaultGDALWarp        = "gdalwarp"
	defaultGDALPolygonize  = "gdal_polygonize.py"
	defaultMapserv         = "mapserv"
	defaultWorkers         = 1
	defaultStateDir        = "~/.local/share/mapgen"
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
	defaultLogRetention    = 30
)

func defaultCopyTargets() []CopyTarget {
	return []CopyTarget{
		{Dir: "renders", Ext: "png"},
		{Dir: "renders_and_data", Ext: "*"},
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Source: Source{
			LonColumn: defaultLonColumn,
			LatColumn: defaultLatColumn,
			Encoding:  defaultEncoding,
		},
		Boundaries: Boundaries{
			Pattern: defaultBoundaryPattern,
		},
		Render: Render{
			LayerMarker:     defaultLayerMarker,
			MaxDimension:    defaultMaxDimension,
			InterpolateSize: defaultInterpolateSize,
			SRS:             defaultSRS,
			Format:          defaultFormat,
			HighClass:       defaultHighClass,
			ModerateClass:   defaultModerateClass,
		},
		Tools: Tools{
			Ogr2ogr:        defaultOgr2ogr,
			GDALRasterize:  defaultGDALRasterize,
			GDALWarp:       defaultGDALWarp,
			GDALPolygonize: defaultGDALPolygonize,
			Mapserv:        defaultMapserv,
		},
		Pipeline: Pipeline{
			Workers: defaultWorkers,
		},
		Paths: Paths{
			StateDir: defaultStateDir,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetention,
		},
	}
}
