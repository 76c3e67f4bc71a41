package scanner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mapperhq/mapper/scanner/models"
)

// Task describes one cache-miss file. Tasks carry everything a worker needs
// so workers share no mutable state with the dispatcher or each other.
type Task struct {
	RelPath       string
	AbsPath       string
	EncodingName  string
	TokenizerKind string
	HashMode      string
	MaxTokens     int
}

// Runner executes tasks on a bounded worker pool. Zero or one workers means
// sequential in-process execution; higher counts are clamped to the
// available parallelism.
type Runner struct {
	workers  int
	encoders *EncoderCache
}

// NewRunner builds a runner. encoders is the run-owned encoder cache shared
// by all workers.
func NewRunner(workers int, encoders *EncoderCache) *Runner {
	if workers < 0 {
		workers = 0
	}
	if max := runtime.NumCPU(); workers > max {
		workers = max
	}
	return &Runner{workers: workers, encoders: encoders}
}

// Workers returns the effective worker count.
func (r *Runner) Workers() int { return r.workers }

// Run processes every task and returns one result per task. Results land in
// task order regardless of completion order, and a per-task failure becomes
// an errored result rather than aborting the batch.
func (r *Runner) Run(ctx context.Context, tasks []Task) []models.TaskResult {
	results := make([]models.TaskResult, len(tasks))
	if r.workers <= 1 {
		for i, task := range tasks {
			results[i] = r.processTask(task)
		}
		return results
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			results[i] = r.processTask(task)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; failures are per-task results
	return results
}

// processTask reads, tokenizes and optionally hashes a single file.
func (r *Runner) processTask(task Task) models.TaskResult {
	data, err := os.ReadFile(task.AbsPath)
	if err != nil {
		return models.TaskResult{
			Path: task.RelPath,
			Kind: models.ResultErrored,
			Err:  fmt.Sprintf("%s: %v", models.SkipReadError, err),
		}
	}

	if bytes.IndexByte(data, 0) >= 0 {
		return models.TaskResult{
			Path:       task.RelPath,
			Kind:       models.ResultSkipped,
			SkipReason: models.SkipBinary,
		}
	}

	text := strings.ToValidUTF8(string(data), "")
	tokens := r.encoders.CountTokens(text, task.TokenizerKind, task.EncodingName)
	if tokens > task.MaxTokens {
		return models.TaskResult{
			Path:       task.RelPath,
			Kind:       models.ResultSkipped,
			SkipReason: models.SkipTooManyTokens,
			Tokens:     tokens,
		}
	}

	var contentHash string
	switch task.HashMode {
	case HashModeFull:
		contentHash = HashBytes(data)
	case HashModeFast:
		contentHash = FastDigest(data)
	}

	return models.TaskResult{
		Path:        task.RelPath,
		Kind:        models.ResultTokenized,
		Tokens:      tokens,
		ContentHash: contentHash,
	}
}
