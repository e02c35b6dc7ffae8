package upload

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/common"
)

var (
	// ErrStagingBufferFull is returned by Transfer.StageImage and Transfer.StageBuffer when the
	// payload does not fit into what is left of the staging buffer. Nothing was created on the
	// device and the request may be retried against a fresh Transfer.
	ErrStagingBufferFull = errors.New("staging buffer does not have room for the upload")
	// ErrUploadTooLarge indicates a payload that does not fit into an empty staging buffer
	ErrUploadTooLarge = errors.New("upload is larger than the staging buffer")
	// ErrQueueUnavailable is returned when a request is submitted after the upload queue was destroyed
	ErrQueueUnavailable = errors.New("upload queue is unavailable")
	// ErrMissingLoadOp is returned when a request is submitted without a LoadOp
	ErrMissingLoadOp = errors.New("upload request has no LoadOp")
)

// TransferState is the progress of a Transfer through the transfer and destination queues
type TransferState int32

const (
	// TransferWritable means the transfer is accepting staged payloads and has not been submitted
	TransferWritable TransferState = iota
	// TransferSentToTransferQueue means the copy commands were submitted and have not finished
	TransferSentToTransferQueue
	// TransferPendingSubmitDstQueue means the copies finished and the acquire commands still need
	// to be submitted to the destination queue
	TransferPendingSubmitDstQueue
	// TransferSentToDstQueue means the acquire commands were submitted and have not finished
	TransferSentToDstQueue
	// TransferComplete means every staged resource is ready for use on the destination queue
	TransferComplete
)

var transferStateMapping = map[TransferState]string{
	TransferWritable:              "TransferWritable",
	TransferSentToTransferQueue:   "TransferSentToTransferQueue",
	TransferPendingSubmitDstQueue: "TransferPendingSubmitDstQueue",
	TransferSentToDstQueue:        "TransferSentToDstQueue",
	TransferComplete:              "TransferComplete",
}

func (s TransferState) String() string {
	return transferStateMapping[s]
}

//go:generate mockgen -source transfer.go -destination ./mocks/transfer.go -package mock_upload

// Transfer is a single staging buffer plus the command buffers that move its contents into
// device-local resources and hand them to the destination queue family.
type Transfer interface {
	// StageImage copies a texture into the staging buffer, creates the destination image and
	// records the copy. It returns ErrStagingBufferFull if the texture does not fit.
	StageImage(texture DecodedTexture) (*Image, common.VkResult, error)
	// StageBuffer copies data into the staging buffer, creates the destination buffer and records
	// the copy. It returns ErrStagingBufferFull if the data does not fit.
	StageBuffer(data []byte) (*Buffer, common.VkResult, error)

	State() (TransferState, common.VkResult, error)
	SubmitTransfer() (common.VkResult, error)
	SubmitDst() (common.VkResult, error)

	// BytesStaged returns the number of staging buffer bytes consumed so far
	BytesStaged() int
	Destroy()
}

// Stager creates Transfers
type Stager interface {
	BeginTransfer(size int) (Transfer, common.VkResult, error)
}
