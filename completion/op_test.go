package completion_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/conveyor/completion"
	"github.com/vkngwrapper/conveyor/mpsc"
)

type testAsset struct {
	name string
}

type testLoadOp struct {
	completed int
	errors    []error
}

func (o *testLoadOp) Complete()       { o.completed++ }
func (o *testLoadOp) Error(err error) { o.errors = append(o.errors, err) }

func drain[T any](q *mpsc.Queue[T]) []T {
	var items []T
	for {
		item, ok := q.TryRecv()
		if !ok {
			return items
		}
		items = append(items, item)
	}
}

func TestOpComplete(t *testing.T) {
	assets := mpsc.New[testAsset]()
	results := mpsc.New[completion.Result[string, testAsset]]()

	op := completion.NewOp[string, testAsset](7, assets, results)
	require.False(t, op.Resolved())

	loadOp := &testLoadOp{}
	op.Complete("image", loadOp)
	require.True(t, op.Resolved())

	op.Error()
	op.Drop()

	received := drain(results)
	require.Len(t, received, 1)
	require.Equal(t, completion.ResultComplete, received[0].Kind)
	require.Equal(t, completion.LoadHandle(7), received[0].Handle)
	require.Equal(t, "image", received[0].Resource)
	require.Same(t, loadOp, received[0].LoadOp)
	require.Equal(t, assets, received[0].AssetSender)
}

func TestOpError(t *testing.T) {
	results := mpsc.New[completion.Result[string, testAsset]]()
	op := completion.NewOp[string, testAsset](3, mpsc.New[testAsset](), results)

	op.Error()
	op.Complete("late", &testLoadOp{})
	op.Drop()

	received := drain(results)
	require.Len(t, received, 1)
	require.Equal(t, completion.ResultError, received[0].Kind)
	require.Equal(t, completion.LoadHandle(3), received[0].Handle)
	require.Nil(t, received[0].LoadOp)
	require.Nil(t, received[0].AssetSender)
}

func TestOpDroppedWithoutResolution(t *testing.T) {
	results := mpsc.New[completion.Result[string, testAsset]]()
	op := completion.NewOp[string, testAsset](11, mpsc.New[testAsset](), results)

	op.Drop()
	op.Drop()

	received := drain(results)
	require.Len(t, received, 1)
	require.Equal(t, completion.ResultDropped, received[0].Kind)
	require.Equal(t, completion.LoadHandle(11), received[0].Handle)
}

func TestOpSendFailureSwallowed(t *testing.T) {
	results := mpsc.New[completion.Result[string, testAsset]]()
	results.Close()

	op := completion.NewOp[string, testAsset](1, mpsc.New[testAsset](), results)
	require.NotPanics(t, func() {
		op.Complete("image", &testLoadOp{})
	})
	require.True(t, op.Resolved())
}

func TestResultKindString(t *testing.T) {
	require.Equal(t, "ResultComplete", completion.ResultComplete.String())
	require.Equal(t, "ResultError", completion.ResultError.String())
	require.Equal(t, "ResultDropped", completion.ResultDropped.String())
}
