package transport

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/stockflow_backend/config"
	"bitbucket.org/mmdatafocus/stockflow_backend/export"
	"bitbucket.org/mmdatafocus/stockflow_backend/models"
	"bitbucket.org/mmdatafocus/stockflow_backend/models/reports"
	"bitbucket.org/mmdatafocus/stockflow_backend/store"
	"bitbucket.org/mmdatafocus/stockflow_backend/utils"
)

const moduleName = "transport"

const (
	DeliveryRemote        = "remote"
	DeliveryLocalFallback = "local-fallback"
)

// betweenArtifactsPause spaces out the artifacts of a combined request so
// the provider never sees two export generations back to back.
const betweenArtifactsPause = 2 * time.Second

// Result is the outcome of one export request, delivered or not.
type Result struct {
	Success       bool                `json:"success"`
	Filename      string              `json:"filename"`
	ByteSize      int                 `json:"byteSize"`
	Delivery      string              `json:"delivery"`
	ErrorCategory utils.ErrorCategory `json:"errorCategory,omitempty"`
}

// Downloader drives the remote-first export flow: ask the provider to
// render, retry timeouts, and fall back to a local render when the remote
// path is exhausted.
type Downloader struct {
	Client *ProviderClient
	Store  *store.CollectionStore

	// pause between the artifacts of a combined request, overridable in tests
	Pause time.Duration
}

func NewDownloader(client *ProviderClient, st *store.CollectionStore) *Downloader {
	return &Downloader{
		Client: client,
		Store:  st,
		Pause:  betweenArtifactsPause,
	}
}

// RequestExport runs one export end to end and hands the artifact to sink.
// The remote render is preferred; a zero-byte remote artifact counts as a
// failure. When the remote path fails, the artifact is rendered locally
// from freshly fetched data, or from the cached collection when the fetch
// fails too.
func (d *Downloader) RequestExport(ctx context.Context, req export.Request, sink export.Sink) (*Result, error) {
	logger := config.GetLogger()
	if err := req.Validate(); err != nil {
		return &Result{Success: false}, err
	}
	if req.Scope == "" {
		req.Scope = export.ScopeFiltered
	}

	artifact, remoteErr := d.remoteArtifact(ctx, req)
	delivery := DeliveryRemote
	if remoteErr != nil {
		config.LogWarn(logger, moduleName, "RequestExport",
			"remote export failed, rendering locally", remoteErr.Error())
		var err error
		artifact, err = d.renderLocal(ctx, req)
		if err != nil {
			return d.finish(ctx, req, nil, "", err)
		}
		delivery = DeliveryLocalFallback
	}

	if err := sink.Save(ctx, artifact); err != nil {
		config.LogError(logger, moduleName, "RequestExport", "artifact delivery failed", artifact.Filename, err)
		return d.finish(ctx, req, artifact, delivery, err)
	}
	return d.finish(ctx, req, artifact, delivery, nil)
}

// RequestCombinedExport produces the requests one after another with a
// deliberate pause in between. The business lock keeps two combined
// requests for the same business from interleaving.
func (d *Downloader) RequestCombinedExport(ctx context.Context, reqs []export.Request, sink export.Sink) ([]*Result, error) {
	businessId, _ := utils.GetBusinessIdFromContext(ctx)
	release, err := utils.BusinessLock(ctx, businessId, "combined-export", moduleName, "RequestCombinedExport")
	if err != nil {
		return nil, err
	}
	defer release()

	results := make([]*Result, 0, len(reqs))
	for i, req := range reqs {
		if i > 0 {
			select {
			case <-time.After(d.Pause):
			case <-ctx.Done():
				return results, ctx.Err()
			}
		}
		result, err := d.RequestExport(ctx, req, sink)
		results = append(results, result)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func (d *Downloader) remoteArtifact(ctx context.Context, req export.Request) (*export.Artifact, error) {
	var data []byte
	policy := ExportRetryPolicy(d.Client.ExportTimeout)
	err := policy.Do(ctx, func(attemptCtx context.Context) error {
		b, err := d.Client.RequestServerExport(attemptCtx, req)
		if err != nil {
			return err
		}
		if len(b) == 0 {
			return utils.NewCategorizedError(utils.ErrorCategoryEmptyArtifact,
				"provider returned a zero-byte artifact", nil)
		}
		data = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &export.Artifact{
		Filename:    req.Filename(),
		ContentType: req.Format.ContentType(),
		Bytes:       data,
	}, nil
}

// renderLocal rebuilds the artifact from data. A fresh fetch is preferred
// over the cached collection so the fallback is at least as current as
// what the caller is looking at.
func (d *Downloader) renderLocal(ctx context.Context, req export.Request) (*export.Artifact, error) {
	logger := config.GetLogger()
	records := d.freshRecords(ctx, req)
	if records == nil && d.Store != nil {
		records = d.Store.Peek()
	}

	if req.Scope == export.ScopeFiltered {
		filtered := make([]*models.TransactionRecord, 0, len(records))
		for _, rec := range records {
			if rec.InDateRange(req.FromTime(), req.ToTime()) {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}

	now := time.Now()
	rows := models.Flatten(records, now)
	if len(rows) == 0 {
		err := utils.NewCategorizedError(utils.ErrorCategoryMissingData,
			"no records available for a local render", nil)
		config.LogError(logger, moduleName, "renderLocal", "local fallback has no data", req.Filename(), err)
		return nil, err
	}
	summary := reports.Aggregate(rows, records)
	return export.Render(rows, summary, req, now)
}

// freshRecords re-fetches and canonicalizes the collection. Nil means the
// fetch path produced nothing usable and the cache should be consulted.
func (d *Downloader) freshRecords(ctx context.Context, req export.Request) []*models.TransactionRecord {
	logger := config.GetLogger()
	var payload any
	policy := FetchRetryPolicy(d.Client.FetchTimeout)
	err := policy.Do(ctx, func(attemptCtx context.Context) error {
		p, err := d.Client.FetchTransactions(attemptCtx, req.Kind, req.FromDate, req.ToDate)
		if err != nil {
			return err
		}
		payload = p
		return nil
	})
	if err != nil {
		config.LogWarn(logger, moduleName, "freshRecords",
			"re-fetch failed, falling back to cached collection", err.Error())
		return nil
	}

	records, err := models.CanonicalizeAs(payload, req.Kind)
	if err != nil {
		config.LogWarn(logger, moduleName, "freshRecords",
			"some rows were skipped during canonicalization", err.Error())
	}
	if len(records) == 0 {
		return nil
	}
	if d.Store != nil {
		d.Store.Set(records)
	}
	return records
}

// finish records the attempt in the audit log, publishes the export event
// and shapes the final result.
func (d *Downloader) finish(ctx context.Context, req export.Request, artifact *export.Artifact, delivery string, cause error) (*Result, error) {
	logger := config.GetLogger()
	businessId, _ := utils.GetBusinessIdFromContext(ctx)
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

	result := &Result{Success: cause == nil, Delivery: delivery}
	if artifact != nil {
		result.Filename = artifact.Filename
		result.ByteSize = len(artifact.Bytes)
	} else {
		result.Filename = req.Filename()
	}
	if cause != nil {
		result.ErrorCategory = utils.CategoryOf(cause)
	}

	entry := &models.ExportLog{
		BusinessId:    businessId,
		Kind:          string(req.Kind),
		Format:        string(req.Format),
		Scope:         string(req.Scope),
		Filename:      result.Filename,
		ByteSize:      result.ByteSize,
		Delivery:      delivery,
		Success:       result.Success,
		ErrorCategory: string(result.ErrorCategory),
		CorrelationId: correlationId,
	}
	if err := models.SaveExportLog(ctx, entry); err != nil {
		config.LogError(logger, moduleName, "finish", "export audit log write failed", result.Filename, err)
	}

	if result.Success {
		if err := config.PublishExportEvent(config.ExportEventMessage{
			BusinessId:    businessId,
			Kind:          string(req.Kind),
			Format:        string(req.Format),
			Filename:      result.Filename,
			ByteSize:      result.ByteSize,
			Delivery:      delivery,
			GeneratedAt:   time.Now(),
			CorrelationId: correlationId,
		}); err != nil {
			config.LogError(logger, moduleName, "finish", "export event publish failed", result.Filename, err)
		}
	}

	return result, cause
}
