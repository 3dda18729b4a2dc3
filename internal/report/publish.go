package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/idbench/idbench/internal/logging"
	"github.com/idbench/idbench/internal/storage"
	"github.com/idbench/idbench/pkg/types"
)

const (
	resultsObject = "results.csv"
	latestDir     = "latest"
)

// PublishingSink uploads the results of a run to object storage under
// <prefix>/<run-id>/. Objects of a run are write-once; a second publish of
// the same run id fails before anything is uploaded and leaves the first one
// intact. The newest run is also mirrored to <prefix>/latest/, which holds
// only that run's artifacts.
type PublishingSink struct {
	store       storage.ObjectStorage
	prefix      string
	runID       string
	attachments []string
	logger      *logging.Logger
}

// PublishOption configures a PublishingSink.
type PublishOption func(*PublishingSink)

// WithRunID overrides the generated run id.
func WithRunID(id string) PublishOption {
	return func(p *PublishingSink) {
		p.runID = id
	}
}

// WithAttachments publishes extra local files next to the results, under
// their base names. Files that do not exist at publish time are skipped.
func WithAttachments(paths ...string) PublishOption {
	return func(p *PublishingSink) {
		p.attachments = append(p.attachments, paths...)
	}
}

// WithPublishLogger sets the logger.
func WithPublishLogger(l *logging.Logger) PublishOption {
	return func(p *PublishingSink) {
		p.logger = l
	}
}

// NewPublishingSink creates a sink publishing to store. The run id defaults
// to a fresh time-ordered wide id so run directories list chronologically.
func NewPublishingSink(store storage.ObjectStorage, prefix string, opts ...PublishOption) (*PublishingSink, error) {
	p := &PublishingSink{
		store:  store,
		prefix: prefix,
		logger: logging.Nop(),
	}
	for _, o := range opts {
		o(p)
	}
	if p.runID == "" {
		id, err := types.NewTimeOrderedWideID()
		if err != nil {
			return nil, fmt.Errorf("generate run id: %w", err)
		}
		p.runID = id.String()
	}
	p.logger = p.logger.WithComponent("report")
	return p, nil
}

// RunID returns the id the run is published under.
func (p *PublishingSink) RunID() string {
	return p.runID
}

type artifact struct {
	local  string
	object string
}

func (p *PublishingSink) Write(ctx context.Context, results []types.BenchmarkResult) error {
	tmp, err := os.CreateTemp("", "idbench-results-*.csv")
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := WriteCSV(tmp, results); err != nil {
		tmp.Close()
		return fmt.Errorf("publish: render csv: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	artifacts := []artifact{{local: tmp.Name(), object: resultsObject}}
	for _, a := range p.attachments {
		if _, err := os.Stat(a); errors.Is(err, os.ErrNotExist) {
			p.logger.DebugContext(ctx, "skipping missing attachment", "path", a)
			continue
		}
		artifacts = append(artifacts, artifact{local: a, object: filepath.Base(a)})
	}

	run := storage.WithPrefix(p.store, path.Join(p.prefix, p.runID))
	existing, err := run.ListObjects(ctx, "")
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	if len(existing) > 0 {
		return fmt.Errorf("publish: run %s already has %s: %w", p.runID, existing[0], storage.ErrPreconditionFailed)
	}

	var published []string
	for _, a := range artifacts {
		if err := run.PutIfAbsent(ctx, a.local, a.object); err != nil {
			p.rollback(ctx, run, published)
			if errors.Is(err, storage.ErrPreconditionFailed) {
				return fmt.Errorf("publish: run %s already has %s: %w", p.runID, a.object, err)
			}
			return fmt.Errorf("publish %s: %w", a.object, err)
		}
		published = append(published, a.object)
		p.logger.LogArtifact(ctx, "published", path.Join(p.prefix, p.runID, a.object), fileSize(a.local))
	}

	latest := storage.WithPrefix(p.store, path.Join(p.prefix, latestDir))
	current := make(map[string]bool, len(artifacts))
	for _, a := range artifacts {
		if err := latest.Upload(ctx, a.local, a.object); err != nil {
			return fmt.Errorf("publish latest %s: %w", a.object, err)
		}
		current[a.object] = true
	}
	p.pruneLatest(ctx, latest, current)
	return nil
}

// pruneLatest removes objects under latest/ left by an earlier run that this
// run did not produce, such as a metrics file that is no longer written.
// Failures are logged; the run itself is already published.
func (p *PublishingSink) pruneLatest(ctx context.Context, latest storage.ObjectStorage, keep map[string]bool) {
	objects, err := latest.ListObjects(ctx, "")
	if err != nil {
		p.logger.WarnContext(ctx, "failed to list latest objects", "error", err)
		return
	}
	for _, o := range objects {
		if keep[o] {
			continue
		}
		if err := latest.Delete(ctx, o); err != nil {
			p.logger.WarnContext(ctx, "failed to remove stale latest object", "object", o, "error", err)
			continue
		}
		p.logger.DebugContext(ctx, "removed stale latest object", "object", o)
	}
}

// rollback removes objects of a partially published run so a retry with
// the same run id can succeed.
func (p *PublishingSink) rollback(ctx context.Context, run storage.ObjectStorage, objects []string) {
	ctx = context.WithoutCancel(ctx)
	for _, o := range objects {
		if err := run.Delete(ctx, o); err != nil {
			p.logger.WarnContext(ctx, "failed to remove partially published object",
				"run_id", p.runID,
				"object", o,
				"error", err,
			)
		}
	}
}

func fileSize(name string) int64 {
	info, err := os.Stat(name)
	if err != nil {
		return 0
	}
	return info.Size()
}
