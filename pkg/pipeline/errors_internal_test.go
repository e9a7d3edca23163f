package pipeline

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorChansConcurrentAdd(t *testing.T) {
	t.Parallel()

	ecs := errorChans{}
	ec1 := newErrorChan("expand", nil)
	ec2 := newErrorChan("execute", nil)
	doneChan := make(chan struct{}, 2)

	for _, ec := range []*errorChan{ec1, ec2} {
		go func() {
			ecs.add(ec)

			doneChan <- struct{}{}
		}()
	}

	<-doneChan
	<-doneChan
	assert.ElementsMatch(t, []*errorChan{ec1, ec2}, ecs.all())
}

func TestMergeErrorsAllNil(t *testing.T) {
	t.Parallel()

	outErrorChan := mergeErrors(newErrorChan("expand", nil), newErrorChan("execute", nil))
	gotErr, open := <-outErrorChan
	assert.False(t, open)
	assert.NoError(t, gotErr)
}

var (
	errExpand  = errors.New("unknown flag")
	errExecute = errors.New("exit status 2")
)

func TestMergeErrors(t *testing.T) {
	t.Parallel()

	chan1 := make(chan error)
	chan2 := make(chan error)

	go func() {
		defer close(chan1)
		defer close(chan2)

		chan1 <- errExpand

		chan2 <- errExecute
	}()

	gotErrs := []error{}
	for err := range mergeErrors(newErrorChan("expand", chan1), newErrorChan("execute", chan2)) {
		gotErrs = append(gotErrs, err)
	}

	sort.Slice(gotErrs, func(i, j int) bool {
		return gotErrs[i].Error() < gotErrs[j].Error()
	})

	require.Len(t, gotErrs, 2)
	require.ErrorIs(t, gotErrs[0], errExecute)
	assert.Equal(t, "execute: exit status 2", gotErrs[0].Error())
	require.ErrorIs(t, gotErrs[1], errExpand)
	assert.Equal(t, "expand: unknown flag", gotErrs[1].Error())
}

func TestWaitForPipelineReturnsFirstError(t *testing.T) {
	t.Parallel()

	okChan := make(chan error)
	close(okChan)
	failChan := make(chan error, 1)
	failChan <- errExecute
	close(failChan)

	cancelled := 0
	cancel := func() { cancelled++ }

	err := waitForPipeline(cancel, newErrorChan("expand", okChan), newErrorChan("execute", failChan))
	require.ErrorIs(t, err, errExecute)
	assert.Equal(t, 1, cancelled)
}

func TestWaitForPipelineKeepsFirstError(t *testing.T) {
	t.Parallel()

	first := make(chan error, 1)
	first <- errExecute
	close(first)

	late := make(chan error, 1)
	cancel := func() {
		// steps report cancellation after the first error was seen
		late <- context.Canceled
		close(late)
	}

	err := waitForPipeline(cancel, newErrorChan("execute", first), newErrorChan("expand", late))
	require.ErrorIs(t, err, errExecute)
}
