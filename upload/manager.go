package upload

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/conveyor/completion"
	"github.com/vkngwrapper/conveyor/mpsc"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"golang.org/x/exp/slog"
)

const defaultStagingBufferSize = 256 * 1024 * 1024

// CreateOptions configures a Manager. The zero value is usable.
type CreateOptions struct {
	// StagingBufferSize is the size in bytes of the staging buffer each batch copies from. A single
	// image or buffer larger than this can never be uploaded. Defaults to 256MiB.
	StagingBufferSize int
}

// Statistics is a point-in-time summary of the upload pipeline
type Statistics struct {
	PendingImageUploads  int
	PendingBufferUploads int
	CarriedOverUploads   int
	InFlightBatches      int
	InFlightUploads      int
	CompletedUploads     int
	FailedUploads        int
	BytesStaged          int
}

// Manager is the entry point asset loaders use to push decoded images and buffers to the device.
// UploadImage and UploadBuffer may be called from any goroutine. Update must be called regularly
// from the goroutine that owns the device queues, and is where every submission happens.
type Manager[IA any, BA any] struct {
	logger *slog.Logger
	queue  *Queue[IA, BA]

	imageResults  *mpsc.Queue[completion.Result[*Image, IA]]
	bufferResults *mpsc.Queue[completion.Result[*Buffer, BA]]
}

func New[IA any, BA any](logger *slog.Logger, stager Stager, options CreateOptions) (*Manager[IA, BA], error) {
	if logger == nil {
		return nil, errors.New("upload.New requires a logger")
	}
	if stager == nil {
		return nil, errors.New("upload.New requires a Stager")
	}
	if options.StagingBufferSize < 0 {
		return nil, errors.Newf("invalid staging buffer size %d", options.StagingBufferSize)
	}

	stagingBufferSize := options.StagingBufferSize
	if stagingBufferSize == 0 {
		stagingBufferSize = defaultStagingBufferSize
	}

	return &Manager[IA, BA]{
		logger: logger,
		queue:  NewQueue[IA, BA](logger, stager, stagingBufferSize),

		imageResults:  mpsc.New[completion.Result[*Image, IA]](),
		bufferResults: mpsc.New[completion.Result[*Buffer, BA]](),
	}, nil
}

// ImageResults receives one result for every image request
func (m *Manager[IA, BA]) ImageResults() *mpsc.Queue[completion.Result[*Image, IA]] {
	return m.imageResults
}

// BufferResults receives one result for every buffer request
func (m *Manager[IA, BA]) BufferResults() *mpsc.Queue[completion.Result[*Buffer, BA]] {
	return m.bufferResults
}

// UploadImage enqueues a decoded image. The image is created and populated during a later Update.
func (m *Manager[IA, BA]) UploadImage(request LoadRequest[ImageAssetData, IA]) (common.VkResult, error) {
	m.logger.Debug("Manager::UploadImage")

	op := completion.NewOp[*Image, IA](request.Handle, request.ResultSender, m.imageResults)
	if request.LoadOp == nil {
		op.Drop()
		return core1_0.VKErrorUnknown, errors.Wrapf(ErrMissingLoadOp, "image upload %d", request.Handle)
	}

	err := m.queue.PendingImageSender().Send(PendingImageUpload[IA]{
		LoadOp: request.LoadOp,
		Op:     op,
		Texture: DecodedTexture{
			Width:      request.Asset.Width,
			Height:     request.Asset.Height,
			ColorSpace: request.Asset.ColorSpace,
			Levels:     request.Asset.Levels,
			Data:       request.Asset.Data,
		},
	})
	if err != nil {
		m.logger.LogAttrs(context.Background(), slog.LevelError, "could not enqueue image upload",
			slog.Uint64("handle", uint64(request.Handle)),
		)
		op.Drop()
		return core1_0.VKErrorUnknown, errors.WithSecondaryError(errors.Wrap(ErrQueueUnavailable, "could not enqueue image upload"), err)
	}

	return core1_0.VKSuccess, nil
}

// UploadBuffer enqueues raw buffer contents. The buffer is created and populated during a later Update.
func (m *Manager[IA, BA]) UploadBuffer(request LoadRequest[BufferAssetData, BA]) (common.VkResult, error) {
	m.logger.Debug("Manager::UploadBuffer")

	op := completion.NewOp[*Buffer, BA](request.Handle, request.ResultSender, m.bufferResults)
	if request.LoadOp == nil {
		op.Drop()
		return core1_0.VKErrorUnknown, errors.Wrapf(ErrMissingLoadOp, "buffer upload %d", request.Handle)
	}

	err := m.queue.PendingBufferSender().Send(PendingBufferUpload[BA]{
		LoadOp: request.LoadOp,
		Op:     op,
		Data:   request.Asset.Data,
	})
	if err != nil {
		m.logger.LogAttrs(context.Background(), slog.LevelError, "could not enqueue buffer upload",
			slog.Uint64("handle", uint64(request.Handle)),
		)
		op.Drop()
		return core1_0.VKErrorUnknown, errors.WithSecondaryError(errors.Wrap(ErrQueueUnavailable, "could not enqueue buffer upload"), err)
	}

	return core1_0.VKSuccess, nil
}

// Update starts new batches and polls the ones in flight
func (m *Manager[IA, BA]) Update() (common.VkResult, error) {
	return m.queue.Update()
}

func (m *Manager[IA, BA]) Statistics() Statistics {
	var stats Statistics
	m.queue.addStatistics(&stats)
	return stats
}

// BuildStatsString returns a JSON document describing the pipeline. When detailedMap is true it
// includes every batch still in flight.
func (m *Manager[IA, BA]) BuildStatsString(detailedMap bool) string {
	m.logger.Debug("Manager::BuildStatsString")

	stats := m.Statistics()

	writer := jwriter.NewWriter()
	obj := writer.Object()

	totalObj := obj.Name("Total").Object()
	totalObj.Name("PendingImageUploads").Int(stats.PendingImageUploads)
	totalObj.Name("PendingBufferUploads").Int(stats.PendingBufferUploads)
	totalObj.Name("CarriedOverUploads").Int(stats.CarriedOverUploads)
	totalObj.Name("InFlightBatches").Int(stats.InFlightBatches)
	totalObj.Name("InFlightUploads").Int(stats.InFlightUploads)
	totalObj.Name("CompletedUploads").Int(stats.CompletedUploads)
	totalObj.Name("FailedUploads").Int(stats.FailedUploads)
	totalObj.Name("BytesStaged").Int(stats.BytesStaged)
	totalObj.End()

	if detailedMap {
		m.queue.printBatches(obj.Name("Batches"))
	}

	obj.End()
	return string(writer.Bytes())
}

// Destroy tears down the upload queue. Requests that were never resolved are reported as dropped
// and every in-flight transfer is destroyed, so the device must be idle.
func (m *Manager[IA, BA]) Destroy() {
	m.logger.Debug("Manager::Destroy")

	m.queue.Destroy()
}
