package extractor

import (
	"fmt"
	"os"
	"sort"

	"github.com/barasher/go-exiftool"
	"github.com/sirupsen/logrus"
)

// FileReport is the result of inspecting an image file on disk.
type FileReport struct {
	Path   string
	Size   int64
	Info   *ImageInfo
	Fields map[string]interface{}
}

// SortedKeys returns the exiftool field names in a stable order.
func (r *FileReport) SortedKeys() []string {
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// InspectFile reads an image file and describes it. Full metadata comes from
// the exiftool binary when it is installed; otherwise only the goexif fields
// are reported.
func InspectFile(path string, logger logrus.FieldLogger) (*FileReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	info, err := NewEXIFExtractor(logger).Inspect(data)
	if err != nil {
		return nil, err
	}

	report := &FileReport{
		Path: path,
		Size: int64(len(data)),
		Info: info,
	}

	fields, err := extractWithExiftool(path)
	if err != nil {
		logger.Debugf("exiftool unavailable, using goexif only: %v", err)
		return report, nil
	}
	report.Fields = fields

	if info.TakenAt == nil {
		if s, ok := fields["DateTimeOriginal"].(string); ok {
			if date := parseEXIFDateTime(s); date != nil {
				info.TakenAt = date
				info.Source = DateSourceExiftool
			}
		}
	}
	return report, nil
}

func extractWithExiftool(path string) (map[string]interface{}, error) {
	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, err
	}
	defer et.Close()

	files := et.ExtractMetadata(path)
	if len(files) == 0 {
		return nil, fmt.Errorf("exiftool returned no metadata for %s", path)
	}
	if files[0].Err != nil {
		return nil, files[0].Err
	}
	return files[0].Fields, nil
}
