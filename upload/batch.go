package upload

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/conveyor/completion"
	"golang.org/x/exp/slog"
)

// PendingImageUpload is an image request waiting to be placed into a batch
type PendingImageUpload[A any] struct {
	LoadOp  completion.LoadOp
	Op      *completion.Op[*Image, A]
	Texture DecodedTexture
}

// PendingBufferUpload is a buffer request waiting to be placed into a batch
type PendingBufferUpload[A any] struct {
	LoadOp completion.LoadOp
	Op     *completion.Op[*Buffer, A]
	Data   []byte
}

type inFlightImageUpload[A any] struct {
	loadOp completion.LoadOp
	op     *completion.Op[*Image, A]
	image  *Owned[*Image]
}

type inFlightBufferUpload[A any] struct {
	loadOp completion.LoadOp
	op     *completion.Op[*Buffer, A]
	buffer *Owned[*Buffer]
}

// PollResult is the outcome of polling a single batch
type PollResult int32

const (
	PollPending PollResult = iota
	PollComplete
	PollError
	// PollDestroyed is returned when a batch that already completed or failed is polled again
	PollDestroyed
)

var pollResultMapping = map[PollResult]string{
	PollPending:   "PollPending",
	PollComplete:  "PollComplete",
	PollError:     "PollError",
	PollDestroyed: "PollDestroyed",
}

func (r PollResult) String() string {
	return pollResultMapping[r]
}

func releaseImage(image *Image) {
	image.Destroy()
}

func releaseBuffer(buffer *Buffer) {
	buffer.Destroy()
}

// batch is one Transfer together with every request staged into it
type batch[IA any, BA any] struct {
	id       uuid.UUID
	logger   *slog.Logger
	transfer Transfer

	imageUploads  []inFlightImageUpload[IA]
	bufferUploads []inFlightBufferUpload[BA]

	finished bool
}

func newBatch[IA any, BA any](logger *slog.Logger, transfer Transfer) *batch[IA, BA] {
	return &batch[IA, BA]{
		id:       uuid.New(),
		logger:   logger,
		transfer: transfer,
	}
}

func (b *batch[IA, BA]) addImage(loadOp completion.LoadOp, op *completion.Op[*Image, IA], image *Image) {
	b.imageUploads = append(b.imageUploads, inFlightImageUpload[IA]{
		loadOp: loadOp,
		op:     op,
		image:  NewOwned(image, releaseImage),
	})
}

func (b *batch[IA, BA]) addBuffer(loadOp completion.LoadOp, op *completion.Op[*Buffer, BA], buffer *Buffer) {
	b.bufferUploads = append(b.bufferUploads, inFlightBufferUpload[BA]{
		loadOp: loadOp,
		op:     op,
		buffer: NewOwned(buffer, releaseBuffer),
	})
}

func (b *batch[IA, BA]) isEmpty() bool {
	return len(b.imageUploads) == 0 && len(b.bufferUploads) == 0
}

func (b *batch[IA, BA]) uploadCount() int {
	return len(b.imageUploads) + len(b.bufferUploads)
}

// poll advances the batch as far as it can go without blocking. Submissions happen inline, so a
// single poll can move a batch from Writable all the way to waiting on the destination queue.
func (b *batch[IA, BA]) poll() PollResult {
	if b.finished {
		return PollDestroyed
	}

	for {
		state, _, err := b.transfer.State()
		if err != nil {
			b.fail(err)
			return PollError
		}

		switch state {
		case TransferWritable:
			_, err = b.transfer.SubmitTransfer()
			if err != nil {
				b.fail(err)
				return PollError
			}
		case TransferSentToTransferQueue:
			return PollPending
		case TransferPendingSubmitDstQueue:
			_, err = b.transfer.SubmitDst()
			if err != nil {
				b.fail(err)
				return PollError
			}
		case TransferSentToDstQueue:
			return PollPending
		case TransferComplete:
			b.complete()
			return PollComplete
		default:
			panic(fmt.Sprintf("batch %s reached unknown transfer state %d", b.id, state))
		}
	}
}

func (b *batch[IA, BA]) complete() {
	for _, upload := range b.imageUploads {
		image, _ := upload.image.Take()
		upload.op.Complete(image, upload.loadOp)
	}

	for _, upload := range b.bufferUploads {
		buffer, _ := upload.buffer.Take()
		upload.op.Complete(buffer, upload.loadOp)
	}

	b.finish()
}

// fail reports err to every request in the batch and releases everything the batch owns
func (b *batch[IA, BA]) fail(err error) {
	b.logger.LogAttrs(context.Background(), slog.LevelError, "upload batch failed",
		slog.String("batch", b.id.String()),
		slog.Int("images", len(b.imageUploads)),
		slog.Int("buffers", len(b.bufferUploads)),
		slog.Any("error", err),
	)

	for _, upload := range b.imageUploads {
		if upload.loadOp != nil {
			upload.loadOp.Error(err)
		}
		upload.op.Error()
		upload.image.Release()
	}

	for _, upload := range b.bufferUploads {
		if upload.loadOp != nil {
			upload.loadOp.Error(err)
		}
		upload.op.Error()
		upload.buffer.Release()
	}

	b.finish()
}

// destroy abandons the batch. Requests that have not been resolved are reported as dropped.
func (b *batch[IA, BA]) destroy() {
	if b.finished {
		return
	}

	for _, upload := range b.imageUploads {
		upload.image.Release()
		upload.op.Drop()
	}

	for _, upload := range b.bufferUploads {
		upload.buffer.Release()
		upload.op.Drop()
	}

	b.finish()
}

func (b *batch[IA, BA]) finish() {
	b.transfer.Destroy()
	b.transfer = nil
	b.imageUploads = nil
	b.bufferUploads = nil
	b.finished = true
}

func (b *batch[IA, BA]) printParameters(json *jwriter.ObjectState) {
	json.Name("Id").String(b.id.String())
	json.Name("Images").Int(len(b.imageUploads))
	json.Name("Buffers").Int(len(b.bufferUploads))
	if b.transfer != nil {
		json.Name("BytesStaged").Int(b.transfer.BytesStaged())
	}
}
