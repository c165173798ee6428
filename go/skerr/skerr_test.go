package skerr_test

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jbohren-forks/catkin-tools/go/skerr"
)

func TestWrap_NilError_ReturnsNil(t *testing.T) {
	require.NoError(t, skerr.Wrap(nil))
	require.NoError(t, skerr.Wrapf(nil, "context: %d", 1))
}

func TestWrap_AnnotatesCallSite(t *testing.T) {
	err := skerr.Wrap(io.EOF)
	require.Error(t, err)
	require.Contains(t, err.Error(), io.EOF.Error())
	require.Contains(t, err.Error(), "skerr_test.go:")
}

func TestWrapf_PrependsMessage(t *testing.T) {
	err := skerr.Wrapf(io.EOF, "reading manifest")
	require.Regexp(t, `^reading manifest: EOF\. At skerr_test\.go:\d+$`, err.Error())
}

func TestFmt_CreatesNewAnnotatedError(t *testing.T) {
	err := skerr.Fmt("dog too small: %d", 3)
	require.Regexp(t, `^dog too small: 3\. At skerr_test\.go:\d+$`, err.Error())
}

func TestWrap_Chained_AccumulatesFramesAndMessages(t *testing.T) {
	base := errors.New("boom")
	err := skerr.Wrapf(skerr.Wrapf(skerr.Wrap(base), "inner"), "outer")
	require.Regexp(t, `^outer: inner: boom\. At skerr_test\.go:\d+ skerr_test\.go:\d+ skerr_test\.go:\d+$`, err.Error())
}

func TestUnwrap_ReturnsRootCause(t *testing.T) {
	base := errors.New("root")
	wrapped := skerr.Wrapf(skerr.Wrap(base), "context")
	require.Equal(t, base, skerr.Unwrap(wrapped))
	require.Equal(t, base, skerr.Unwrap(base))
}

func TestIs_FindsSentinelThroughChain(t *testing.T) {
	wrapped := fmt.Errorf("while doing x: %w", skerr.Wrap(io.EOF))
	require.True(t, skerr.Is(wrapped, io.EOF))
}

func TestAs_ExtractsTypedError(t *testing.T) {
	var syntaxErr *exampleTypedError
	wrapped := skerr.Wrapf(&exampleTypedError{Code: 7}, "decoding")
	require.True(t, skerr.As(wrapped, &syntaxErr))
	require.Equal(t, 7, syntaxErr.Code)
}

type exampleTypedError struct {
	Code int
}

func (e *exampleTypedError) Error() string {
	return fmt.Sprintf("typed error %d", e.Code)
}
