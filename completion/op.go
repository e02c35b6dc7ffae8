package completion

import (
	"github.com/vkngwrapper/conveyor/mpsc"
)

// LoadHandle identifies a single asset load within the asset-loading system
type LoadHandle uint64

// LoadOp is the continuation token the asset-loading system hands out with each load request.
// The upload pipeline carries it alongside the request and passes it back with the result so the
// loader can finish (or fail) the load.
type LoadOp interface {
	Complete()
	Error(err error)
}

// ResultKind identifies which of the three possible outcomes an Op resolved with
type ResultKind int

const (
	// ResultComplete indicates the resource was created and populated successfully
	ResultComplete ResultKind = iota + 1
	// ResultError indicates the upload failed and all resources were torn down
	ResultError
	// ResultDropped indicates that the owner of the Op was torn down before it was resolved.
	// Receivers should treat this as a cancelled load.
	ResultDropped
)

var resultKindMapping = map[ResultKind]string{
	ResultComplete: "ResultComplete",
	ResultError:    "ResultError",
	ResultDropped:  "ResultDropped",
}

func (k ResultKind) String() string {
	return resultKindMapping[k]
}

// Result is the message an Op delivers to its result receiver. LoadOp, AssetSender and Resource
// are only populated when Kind is ResultComplete.
type Result[R any, A any] struct {
	Kind   ResultKind
	Handle LoadHandle

	LoadOp      LoadOp
	AssetSender mpsc.Sender[A]
	Resource    R
}

// Op is a single-fire notifier. Over its lifetime it sends exactly one of complete, error or
// dropped to its result sender. Once resolved, further calls are ignored.
//
// Op is not safe for concurrent use: it belongs to whichever upload currently owns the request.
type Op[R any, A any] struct {
	handle      LoadHandle
	assetSender mpsc.Sender[A]
	sender      mpsc.Sender[Result[R, A]]
}

// NewOp creates an unresolved Op. assetSender is passed through untouched to the receiver of a
// successful result, and sender receives the single Result.
func NewOp[R any, A any](handle LoadHandle, assetSender mpsc.Sender[A], sender mpsc.Sender[Result[R, A]]) *Op[R, A] {
	return &Op[R, A]{
		handle:      handle,
		assetSender: assetSender,
		sender:      sender,
	}
}

// Handle returns the load handle this Op reports for
func (o *Op[R, A]) Handle() LoadHandle {
	return o.handle
}

// Resolved returns true once Complete, Error or Drop has fired
func (o *Op[R, A]) Resolved() bool {
	return o.sender == nil
}

// Complete sends a successful result carrying the finished resource and the load continuation
func (o *Op[R, A]) Complete(resource R, loadOp LoadOp) {
	o.resolve(Result[R, A]{
		Kind:        ResultComplete,
		Handle:      o.handle,
		LoadOp:      loadOp,
		AssetSender: o.assetSender,
		Resource:    resource,
	})
	o.assetSender = nil
}

// Error sends a failure result tagged with the load handle
func (o *Op[R, A]) Error() {
	o.resolve(Result[R, A]{
		Kind:   ResultError,
		Handle: o.handle,
	})
}

// Drop sends a dropped result if the Op has not already been resolved. Owners call it from their
// teardown path.
func (o *Op[R, A]) Drop() {
	o.resolve(Result[R, A]{
		Kind:   ResultDropped,
		Handle: o.handle,
	})
}

func (o *Op[R, A]) resolve(result Result[R, A]) {
	if o.sender == nil {
		return
	}

	sender := o.sender
	o.sender = nil

	// The receiver may already be gone during shutdown
	_ = sender.Send(result)
}
