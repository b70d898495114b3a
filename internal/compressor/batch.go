package compressor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// BatchParams defines parameters for compressing files on disk.
type BatchParams struct {
	InputPaths []string
	// TargetDir receives the outputs; empty means next to each input.
	TargetDir string
	Quality   int
	Marker    string
	Formats   []string
	// Overwrite replaces existing outputs instead of numbering new ones.
	Overwrite bool
}

// BatchResult describes the result of compressing a single file.
type BatchResult struct {
	InputPath       string
	OutputPath      string
	OriginalSize    int64
	CompressedSize  int64
	PercentageSaved float64
	Action          string
	Message         string
	Success         bool
	StartedAt       time.Time
	FinishedAt      time.Time
	Error           error
}

// CompressFiles runs c over every supported file found under params.InputPaths
// using a bounded worker pool. Results keep the discovery order.
func CompressFiles(ctx context.Context, c Compressor, params BatchParams) ([]BatchResult, error) {
	files, err := collectImageFiles(params.InputPaths, params.Formats)
	if err != nil {
		return nil, fmt.Errorf("collect files: %w", err)
	}
	if len(files) == 0 {
		return nil, nil
	}

	if params.TargetDir != "" {
		if err := os.MkdirAll(params.TargetDir, 0755); err != nil {
			return nil, fmt.Errorf("create target dir: %w", err)
		}
	}

	numWorkers := min(max(runtime.NumCPU(), 2), len(files))
	type job struct {
		index int
		path  string
	}
	type result struct {
		index int
		res   BatchResult
	}

	jobs := make(chan job, len(files))
	results := make(chan result, len(files))

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				results <- result{index: j.index, res: compressOne(ctx, c, j.path, params)}
			}
		}()
	}

	for i, path := range files {
		jobs <- job{index: i, path: path}
	}
	close(jobs)

	wg.Wait()
	close(results)

	resArr := make([]BatchResult, len(files))
	for r := range results {
		resArr[r.index] = r.res
	}
	if err := ctx.Err(); err != nil {
		return resArr, err
	}
	return resArr, nil
}

// collectImageFiles recursively collects all files with supported extensions.
func collectImageFiles(inputPaths []string, formats []string) ([]string, error) {
	var files []string
	extSet := make(map[string]struct{})
	for _, f := range formats {
		f = strings.ToLower(f)
		if !strings.HasPrefix(f, ".") {
			f = "." + f
		}
		extSet[f] = struct{}{}
	}
	supported := func(name string) bool {
		if len(extSet) == 0 {
			return true
		}
		_, ok := extSet[strings.ToLower(filepath.Ext(name))]
		return ok
	}

	for _, in := range inputPaths {
		info, err := os.Stat(in)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if supported(info.Name()) {
				files = append(files, in)
			}
			continue
		}
		err = filepath.WalkDir(in, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			if supported(d.Name()) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

// compressOne compresses a single file and writes the output atomically.
func compressOne(ctx context.Context, c Compressor, inputPath string, params BatchParams) BatchResult {
	res := BatchResult{
		InputPath: inputPath,
		StartedAt: time.Now(),
	}
	fail := func(stage string, err error) BatchResult {
		res.Action = "error"
		res.Message = fmt.Sprintf("%s error: %v", stage, err)
		res.Error = err
		res.FinishedAt = time.Now()
		return res
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return fail("read", err)
	}
	res.OriginalSize = int64(len(data))

	src := Source{
		Name:     filepath.Base(inputPath),
		MIMEType: mimetype.Detect(data).String(),
		Data:     data,
	}
	out, err := c.Compress(ctx, src, Options{Quality: float64(params.Quality) / 100})
	if err != nil {
		return fail("compress", err)
	}

	dir := params.TargetDir
	if dir == "" {
		dir = filepath.Dir(inputPath)
	}
	outPath := filepath.Join(dir, OutputName(src.Name, params.Marker))
	if !params.Overwrite {
		outPath = uniquePath(outPath)
	}
	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, out.Data, 0644); err != nil {
		return fail("write tmp file", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		_ = os.Remove(tmpPath)
		return fail("rename", err)
	}

	res.OutputPath = outPath
	res.CompressedSize = out.Size()
	res.PercentageSaved = Reduction(res.OriginalSize, res.CompressedSize)
	res.Action = out.Action
	res.Message = "Image compressed"
	if out.Action == ActionOriginal {
		res.Message = "Compressed file not smaller than original, saved original"
	}
	res.Success = true
	res.FinishedAt = time.Now()
	return res
}

// uniquePath returns path, or the first free "name_N.ext" variant of it.
func uniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}

	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(filepath.Base(path), ext)
	for counter := 1; ; counter++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, counter, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
