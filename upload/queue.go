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

// Queue gathers pending upload requests into batches, submits them and polls the batches in
// flight. Requests may be sent from any goroutine, but every other method must be called from the
// goroutine that owns the device queues.
type Queue[IA any, BA any] struct {
	logger            *slog.Logger
	stager            Stager
	stagingBufferSize int

	pendingImages  *mpsc.Queue[PendingImageUpload[IA]]
	pendingBuffers *mpsc.Queue[PendingBufferUpload[BA]]

	// Requests that did not fit into the last transfer, ahead of everything still in the channels
	carriedImages  []PendingImageUpload[IA]
	carriedBuffers []PendingBufferUpload[BA]

	uploadsInProgress []*batch[IA, BA]

	completedUploads int
	failedUploads    int
	bytesStaged      int
	destroyed        bool
}

func NewQueue[IA any, BA any](logger *slog.Logger, stager Stager, stagingBufferSize int) *Queue[IA, BA] {
	return &Queue[IA, BA]{
		logger:            logger,
		stager:            stager,
		stagingBufferSize: stagingBufferSize,

		pendingImages:  mpsc.New[PendingImageUpload[IA]](),
		pendingBuffers: mpsc.New[PendingBufferUpload[BA]](),
	}
}

func (q *Queue[IA, BA]) PendingImageSender() mpsc.Sender[PendingImageUpload[IA]] {
	return q.pendingImages
}

func (q *Queue[IA, BA]) PendingBufferSender() mpsc.Sender[PendingBufferUpload[BA]] {
	return q.pendingBuffers
}

// InFlightCount returns the number of batches that have been submitted and not yet resolved
func (q *Queue[IA, BA]) InFlightCount() int {
	return len(q.uploadsInProgress)
}

func (q *Queue[IA, BA]) hasPendingUploads() bool {
	return len(q.carriedImages) > 0 || len(q.carriedBuffers) > 0 ||
		!q.pendingImages.IsEmpty() || !q.pendingBuffers.IsEmpty()
}

// failRequest reports err for a single request that never became part of a batch
func failRequest[R any, A any](loadOp completion.LoadOp, op *completion.Op[R, A], err error) {
	if loadOp != nil {
		loadOp.Error(err)
	}
	op.Error()
}

// stageResult is what happened to a single request when it was offered to a transfer
type stageResult int

const (
	stageAccepted stageResult = iota
	stageRejected
	stageFull
	stageFatal
)

func (q *Queue[IA, BA]) stageImage(b *batch[IA, BA], pending PendingImageUpload[IA]) (stageResult, common.VkResult, error) {
	err := pending.Texture.Validate()
	if err != nil {
		q.failedUploads++
		failRequest(pending.LoadOp, pending.Op, err)
		return stageRejected, core1_0.VKSuccess, nil
	}

	image, res, err := b.transfer.StageImage(pending.Texture)
	if errors.Is(err, ErrStagingBufferFull) {
		if b.transfer.BytesStaged() > 0 {
			return stageFull, core1_0.VKSuccess, nil
		}

		q.failedUploads++
		failRequest(pending.LoadOp, pending.Op, errors.Wrapf(ErrUploadTooLarge, "image of %d bytes", len(pending.Texture.Data)))
		return stageRejected, core1_0.VKSuccess, nil
	} else if err != nil {
		q.failedUploads += b.uploadCount() + 1
		failRequest(pending.LoadOp, pending.Op, err)
		b.fail(err)
		return stageFatal, res, err
	}

	b.addImage(pending.LoadOp, pending.Op, image)
	return stageAccepted, res, nil
}

func (q *Queue[IA, BA]) stageBuffer(b *batch[IA, BA], pending PendingBufferUpload[BA]) (stageResult, common.VkResult, error) {
	if len(pending.Data) == 0 {
		q.failedUploads++
		failRequest(pending.LoadOp, pending.Op, errors.New("buffer upload has no data"))
		return stageRejected, core1_0.VKSuccess, nil
	}

	buffer, res, err := b.transfer.StageBuffer(pending.Data)
	if errors.Is(err, ErrStagingBufferFull) {
		if b.transfer.BytesStaged() > 0 {
			return stageFull, core1_0.VKSuccess, nil
		}

		q.failedUploads++
		failRequest(pending.LoadOp, pending.Op, errors.Wrapf(ErrUploadTooLarge, "buffer of %d bytes", len(pending.Data)))
		return stageRejected, core1_0.VKSuccess, nil
	} else if err != nil {
		q.failedUploads += b.uploadCount() + 1
		failRequest(pending.LoadOp, pending.Op, err)
		b.fail(err)
		return stageFatal, res, err
	}

	b.addBuffer(pending.LoadOp, pending.Op, buffer)
	return stageAccepted, res, nil
}

// nextImage pops the oldest image request, carried-over requests first
func (q *Queue[IA, BA]) nextImage() (PendingImageUpload[IA], bool) {
	if len(q.carriedImages) > 0 {
		pending := q.carriedImages[0]
		q.carriedImages = q.carriedImages[1:]
		return pending, true
	}

	return q.pendingImages.TryRecv()
}

func (q *Queue[IA, BA]) nextBuffer() (PendingBufferUpload[BA], bool) {
	if len(q.carriedBuffers) > 0 {
		pending := q.carriedBuffers[0]
		q.carriedBuffers = q.carriedBuffers[1:]
		return pending, true
	}

	return q.pendingBuffers.TryRecv()
}

// StartNewUploads places as many pending requests as will fit into a new transfer and submits it.
// Requests that do not fit wait for the next call.
func (q *Queue[IA, BA]) StartNewUploads() (common.VkResult, error) {
	if q.destroyed {
		return core1_0.VKErrorUnknown, ErrQueueUnavailable
	}

	if !q.hasPendingUploads() {
		return core1_0.VKSuccess, nil
	}

	transfer, res, err := q.stager.BeginTransfer(q.stagingBufferSize)
	if err != nil {
		return res, err
	}

	b := newBatch[IA, BA](q.logger, transfer)
	full := false

	for !full {
		pending, ok := q.nextImage()
		if !ok {
			break
		}

		result, res, err := q.stageImage(b, pending)
		switch result {
		case stageFull:
			full = true
			q.carriedImages = append([]PendingImageUpload[IA]{pending}, q.carriedImages...)
		case stageFatal:
			return res, err
		}
	}

	for !full {
		pending, ok := q.nextBuffer()
		if !ok {
			break
		}

		result, res, err := q.stageBuffer(b, pending)
		switch result {
		case stageFull:
			full = true
			q.carriedBuffers = append([]PendingBufferUpload[BA]{pending}, q.carriedBuffers...)
		case stageFatal:
			return res, err
		}
	}

	if b.isEmpty() {
		transfer.Destroy()
		return core1_0.VKSuccess, nil
	}

	q.bytesStaged += transfer.BytesStaged()
	if full {
		q.logger.LogAttrs(context.Background(), slog.LevelDebug, "staging buffer full, carrying uploads over",
			slog.String("batch", b.id.String()),
			slog.Int("carriedImages", len(q.carriedImages)),
			slog.Int("carriedBuffers", len(q.carriedBuffers)),
		)
	}

	res, err = transfer.SubmitTransfer()
	if err != nil {
		q.failedUploads += b.uploadCount()
		b.fail(err)
		return res, err
	}

	q.uploadsInProgress = append(q.uploadsInProgress, b)
	return res, nil
}

// UpdateExistingUploads polls every batch in flight once and retires the ones that completed or failed
func (q *Queue[IA, BA]) UpdateExistingUploads() {
	for i := len(q.uploadsInProgress) - 1; i >= 0; i-- {
		b := q.uploadsInProgress[i]
		count := b.uploadCount()

		switch b.poll() {
		case PollPending:
			continue
		case PollComplete:
			q.completedUploads += count
		case PollError:
			q.failedUploads += count
		case PollDestroyed:
			panic("polled an upload batch that had already completed or failed")
		}

		lastIndex := len(q.uploadsInProgress) - 1
		q.uploadsInProgress[i] = q.uploadsInProgress[lastIndex]
		q.uploadsInProgress[lastIndex] = nil
		q.uploadsInProgress = q.uploadsInProgress[:lastIndex]
	}
}

// Update starts new uploads and polls the existing ones. Existing uploads are polled even when
// starting new ones failed, and the failure is returned afterward.
func (q *Queue[IA, BA]) Update() (common.VkResult, error) {
	res, err := q.StartNewUploads()
	if !q.destroyed {
		q.UpdateExistingUploads()
	}
	return res, err
}

// Destroy closes both request channels and abandons every request that has not been resolved.
// The transfers of batches still in flight are destroyed, so the caller must make sure the device
// is idle first.
func (q *Queue[IA, BA]) Destroy() {
	if q.destroyed {
		return
	}
	q.destroyed = true

	for _, pending := range q.carriedImages {
		pending.Op.Drop()
	}
	for _, pending := range q.pendingImages.Close() {
		pending.Op.Drop()
	}
	for _, pending := range q.carriedBuffers {
		pending.Op.Drop()
	}
	for _, pending := range q.pendingBuffers.Close() {
		pending.Op.Drop()
	}
	q.carriedImages = nil
	q.carriedBuffers = nil

	for _, b := range q.uploadsInProgress {
		b.destroy()
	}
	q.uploadsInProgress = nil
}

func (q *Queue[IA, BA]) addStatistics(stats *Statistics) {
	stats.PendingImageUploads += len(q.carriedImages) + q.pendingImages.Len()
	stats.PendingBufferUploads += len(q.carriedBuffers) + q.pendingBuffers.Len()
	stats.CarriedOverUploads += len(q.carriedImages) + len(q.carriedBuffers)
	stats.InFlightBatches += len(q.uploadsInProgress)
	for _, b := range q.uploadsInProgress {
		stats.InFlightUploads += b.uploadCount()
	}
	stats.CompletedUploads += q.completedUploads
	stats.FailedUploads += q.failedUploads
	stats.BytesStaged += q.bytesStaged
}

func (q *Queue[IA, BA]) printBatches(writer *jwriter.Writer) {
	s := writer.Array()
	defer s.End()

	for _, b := range q.uploadsInProgress {
		o := s.Object()
		b.printParameters(&o)
		o.End()
	}
}
