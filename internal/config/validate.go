package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"mapgen/internal/manifest"
	"mapgen/internal/services"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("toml"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// Validate ensures the settings shared by every command are usable.
func (c *Config) Validate() error {
	if c.Pipeline.Workers < 1 {
		return configError("pipeline.workers must be at least 1")
	}
	if c.Tools.TimeoutSeconds < 0 {
		return configError("tools.timeout_seconds must not be negative")
	}
	if c.Logging.RetentionDays < 0 {
		return configError("logging.retention_days must not be negative")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return configError(fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	return nil
}

// RequirePipeline checks the sections the map generation pipeline depends on.
func (c *Config) RequirePipeline() error {
	if err := structError("source", validate.Struct(c.Source)); err != nil {
		return err
	}
	if err := structError("boundaries", validate.Struct(c.Boundaries)); err != nil {
		return err
	}
	if err := structError("render", validate.Struct(c.Render)); err != nil {
		return err
	}
	if c.Source.LonColumn == c.Source.LatColumn {
		return configError("source.lon_column and source.lat_column must differ")
	}
	if c.Render.HighClass == c.Render.ModerateClass {
		return configError("render.high_class and render.moderate_class must differ")
	}
	return c.validateFieldNames()
}

// RequireCopier checks the copier section.
func (c *Config) RequireCopier() error {
	return structError("copier", validate.Struct(c.Copier))
}

// validateFieldNames rejects column sets whose shapefile attribute names
// collide once truncated, since the clipped points are written as shapefiles.
func (c *Config) validateFieldNames() error {
	seenColumn := make(map[string]struct{}, len(c.Source.Fields)*2)
	seenAttr := make(map[string]string, len(c.Source.Fields)*2)
	for _, name := range []string{c.Source.LonColumn, c.Source.LatColumn} {
		seenAttr[manifest.ShapefileField(name)] = name
	}
	for _, field := range c.Source.Fields {
		for _, column := range []string{field.Data, field.Significance} {
			if _, dup := seenColumn[column]; dup {
				return configError(fmt.Sprintf("source.fields: column %q listed more than once", column))
			}
			seenColumn[column] = struct{}{}
			attr := manifest.ShapefileField(column)
			if other, clash := seenAttr[attr]; clash {
				return configError(fmt.Sprintf("source.fields: columns %q and %q share shapefile attribute name %q", other, column, attr))
			}
			seenAttr[attr] = column
		}
	}
	return nil
}

func structError(section string, err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return configError(fmt.Sprintf("%s: %v", section, err))
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := fe.Namespace()
		if idx := strings.IndexByte(name, '.'); idx >= 0 {
			name = name[idx+1:]
		}
		msg := fmt.Sprintf("%s.%s failed %q", section, name, fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s.%s failed %q (%s)", section, name, fe.Tag(), fe.Param())
		}
		msgs = append(msgs, msg)
	}
	return configError(strings.Join(msgs, "; "))
}

func configError(message string) error {
	return fmt.Errorf("%w: %s", services.ErrConfiguration, message)
}
