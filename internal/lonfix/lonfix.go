// Package lonfix rewrites tabular datasets that use a 0..360 longitude
// convention so every longitude of 180 or more becomes its -180..180
// equivalent. All other cells pass through untouched.
//
// Rows are re-emitted through encoding/csv: cell values and the input's line
// ending (LF or CRLF) are kept, but quoting is reduced to what each cell
// needs, so a quoted cell without separators comes back unquoted.
package lonfix

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"mapgen/internal/fileutil"
	"mapgen/internal/services"
)

// Options configures NormalizeFile.
type Options struct {
	// LonColumn names the longitude column in the header row.
	LonColumn string
	// Encoding of the input: utf-8, latin1, latin2, windows-1250, windows-1252.
	Encoding string
}

// Normalize maps a 0..360 longitude onto -180..180. Values below 180 are
// returned unchanged, which makes the function idempotent.
func Normalize(lon float64) float64 {
	if lon >= 180 {
		return lon - 360
	}
	return lon
}

// NormalizeFile streams src into dst row by row, rewriting the longitude
// column. It returns the number of data rows written. A non-numeric longitude
// or a row with the wrong number of columns aborts with an ErrData error.
func NormalizeFile(ctx context.Context, src, dst string, opts Options) (int, error) {
	dec, err := decoderFor(opts.Encoding)
	if err != nil {
		return 0, err
	}
	in, err := os.Open(src)
	if err != nil {
		return 0, services.Wrap(services.ErrConfiguration, "normalize", src, "open source", err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, services.Wrap(services.ErrFilesystem, "normalize", dst, "create directory", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return 0, services.Wrap(services.ErrFilesystem, "normalize", dst, "create output", err)
	}

	var source io.Reader = in
	if dec != nil {
		source = dec.NewDecoder().Reader(in)
	}
	rows, err := Rewrite(ctx, source, out, opts.LonColumn)
	if closeErr := out.Close(); closeErr != nil && err == nil {
		err = services.Wrap(services.ErrFilesystem, "normalize", dst, "close output", closeErr)
	}
	if err != nil {
		_ = os.Remove(dst)
		return 0, err
	}
	return rows, nil
}

// Rewrite performs the normalization between arbitrary streams.
func Rewrite(ctx context.Context, r io.Reader, w io.Writer, lonColumn string) (int, error) {
	br := bufio.NewReader(r)
	reader := csv.NewReader(br)
	reader.ReuseRecord = true
	writer := csv.NewWriter(w)
	writer.UseCRLF = usesCRLF(br)

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, services.Wrap(services.ErrData, "normalize", "header", "input is empty", nil)
		}
		return 0, services.Wrap(services.ErrData, "normalize", "header", "read header", err)
	}
	header = trimBOM(header)
	lonIdx := columnIndex(header, lonColumn)
	if lonIdx < 0 {
		return 0, services.Wrap(services.ErrData, "normalize", "header",
			fmt.Sprintf("longitude column %q not found in %v", lonColumn, header), nil)
	}
	if err := writer.Write(header); err != nil {
		return 0, services.Wrap(services.ErrFilesystem, "normalize", "header", "write header", err)
	}

	rows := 0
	for {
		if rows%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return rows, err
			}
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rows, services.Wrap(services.ErrData, "normalize", "read", "malformed row", err)
		}
		line, _ := reader.FieldPos(0)
		raw := strings.TrimSpace(record[lonIdx])
		lon, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return rows, services.Wrap(services.ErrData, "normalize", fmt.Sprintf("line %d", line),
				fmt.Sprintf("longitude %q is not numeric", record[lonIdx]), nil)
		}
		if lon >= 180 {
			record[lonIdx] = strconv.FormatFloat(Normalize(lon), 'f', -1, 64)
		}
		if err := writer.Write(record); err != nil {
			return rows, services.Wrap(services.ErrFilesystem, "normalize", fmt.Sprintf("line %d", line), "write row", err)
		}
		rows++
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return rows, services.Wrap(services.ErrFilesystem, "normalize", "flush", "write output", err)
	}
	return rows, nil
}

// CopyFile copies src to dst byte for byte. It is used when the dataset needs
// no longitude correction.
func CopyFile(src, dst string) error {
	if _, err := os.Stat(src); err != nil {
		return services.Wrap(services.ErrConfiguration, "normalize", src, "open source", err)
	}
	if _, err := fileutil.CopyFile(src, dst); err != nil {
		return services.Wrap(services.ErrFilesystem, "normalize", dst, "copy source", err)
	}
	return nil
}

// CountRows returns the number of data rows in the CSV at path, excluding the
// header. Row widths are not checked.
func CountRows(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, services.Wrap(services.ErrFilesystem, "normalize", path, "open for counting", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.ReuseRecord = true
	reader.FieldsPerRecord = -1
	records := 0
	for {
		if records%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		_, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, services.Wrap(services.ErrData, "normalize", path, "count rows", err)
		}
		records++
	}
	if records == 0 {
		return 0, nil
	}
	return records - 1, nil
}

// usesCRLF reports whether the first line in br ends with CRLF.
func usesCRLF(br *bufio.Reader) bool {
	head, _ := br.Peek(br.Size())
	idx := bytes.IndexByte(head, '\n')
	return idx > 0 && head[idx-1] == '\r'
}

// decoderFor returns nil for UTF-8 so input bytes reach the CSV reader as is.
func decoderFor(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "latin1", "iso-8859-1":
		return charmap.ISO8859_1, nil
	case "latin2", "iso-8859-2":
		return charmap.ISO8859_2, nil
	case "windows-1250", "cp1250":
		return charmap.Windows1250, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "normalize", "encoding",
			fmt.Sprintf("unsupported encoding %q", name), nil)
	}
}

func columnIndex(header []string, name string) int {
	for i, col := range header {
		if strings.TrimSpace(col) == name {
			return i
		}
	}
	for i, col := range header {
		if strings.EqualFold(strings.TrimSpace(col), name) {
			return i
		}
	}
	return -1
}

func trimBOM(header []string) []string {
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return header
}
