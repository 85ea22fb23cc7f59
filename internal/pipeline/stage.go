package pipeline

import (
	"fmt"
	"strings"
)

// Stage names one step of the run.
type Stage string

const (
	StageManifest              Stage = "manifest"
	StagePrepare               Stage = "prepare"
	StageNormalize             Stage = "normalize"
	StageDescriptor            Stage = "descriptor"
	StageClip                  Stage = "clip"
	StageRasterize             Stage = "rasterize"
	StageRasterizeSignificance Stage = "rasterize-significance"
	StageInterpolate           Stage = "interpolate"
	StagePolygonize            Stage = "polygonize"
	StageMapfile               Stage = "mapfile"
	StageRender                Stage = "render"
	StageVerify                Stage = "verify"
)

// Stages lists every stage in execution order.
func Stages() []Stage {
	return []Stage{
		StageManifest, StagePrepare, StageNormalize, StageDescriptor,
		StageClip, StageRasterize, StageRasterizeSignificance, StageInterpolate, StagePolygonize,
		StageMapfile, StageRender, StageVerify,
	}
}

// StageError reports which stage failed and for which boundary and field.
type StageError struct {
	Stage    Stage
	Boundary string
	Field    string
	Err      error
}

func (e *StageError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "stage %s", e.Stage)
	if e.Boundary != "" {
		fmt.Fprintf(&b, " boundary %s", e.Boundary)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " field %s", e.Field)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *StageError) Unwrap() error { return e.Err }
