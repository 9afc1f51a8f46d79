package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"testing"

	apperrors "rag-server/errors"

	"go.uber.org/zap"
)

// sliceFrameSource replays a fixed set of frames.
type sliceFrameSource struct {
	frames []*UploadFrame
	pos    int
}

func (s *sliceFrameSource) Next() (*UploadFrame, error) {
	if s.pos >= len(s.frames) {
		return nil, io.EOF
	}
	frame := s.frames[s.pos]
	s.pos++
	return frame, nil
}

func uploadFrames(payload []byte, chunkSize int, checksum string) []*UploadFrame {
	frames := []*UploadFrame{{
		Metadata: &UploadMetadata{
			UserID:      "user_1",
			Filename:    "notes.txt",
			TotalSize:   int64(len(payload)),
			TotalChunks: (len(payload) + chunkSize - 1) / chunkSize,
			Checksum:    checksum,
		},
	}}
	index := 1
	for start := 0; start < len(payload); start += chunkSize {
		end := min(start+chunkSize, len(payload))
		frames = append(frames, &UploadFrame{
			ChunkIndex: index,
			Data:       payload[start:end],
			IsLast:     end == len(payload),
		})
		index++
	}
	return frames
}

// assembleOnly runs the protocol checks without a backing resource
// service; tests that expect failure never reach AddResource.
func assembleExpectingError(t *testing.T, frames []*UploadFrame) error {
	t.Helper()
	svc := &UploadService{resources: nil, logger: zap.NewNop()}
	_, err := svc.Assemble(context.Background(), &sliceFrameSource{frames: frames})
	if err == nil {
		t.Fatal("expected error")
	}
	return err
}

func TestAssembleIndexMismatch(t *testing.T) {
	payload := []byte("hello world, this is an upload")
	frames := uploadFrames(payload, 10, "")
	frames[2].ChunkIndex = 5

	err := assembleExpectingError(t, frames)
	if !apperrors.IsInvalidInput(err) {
		t.Errorf("got %v, want invalid input", err)
	}
}

func TestAssembleMissingMetadata(t *testing.T) {
	frames := []*UploadFrame{{ChunkIndex: 1, Data: []byte("x"), IsLast: true}}

	err := assembleExpectingError(t, frames)
	if !apperrors.IsInvalidInput(err) {
		t.Errorf("got %v, want invalid input", err)
	}
}

func TestAssembleSizeMismatch(t *testing.T) {
	payload := []byte("twelve bytes")
	frames := uploadFrames(payload, 4, "")
	frames[0].Metadata.TotalSize = int64(len(payload)) + 1

	err := assembleExpectingError(t, frames)
	if !apperrors.IsDataLoss(err) {
		t.Errorf("got %v, want data loss", err)
	}
}

func TestAssembleChecksumMismatch(t *testing.T) {
	payload := []byte("some file content")
	wrong := sha256.Sum256([]byte("different content"))
	frames := uploadFrames(payload, 8, hex.EncodeToString(wrong[:]))

	err := assembleExpectingError(t, frames)
	if !apperrors.IsDataLoss(err) {
		t.Errorf("got %v, want data loss", err)
	}
}

func TestAssembleRejectsOversizeChunk(t *testing.T) {
	big := make([]byte, maxChunkBytes+1)
	frames := []*UploadFrame{
		{Metadata: &UploadMetadata{UserID: "user_1", Filename: "f", TotalSize: int64(len(big)), TotalChunks: 1}},
		{ChunkIndex: 1, Data: big, IsLast: true},
	}

	err := assembleExpectingError(t, frames)
	if !apperrors.IsInvalidInput(err) {
		t.Errorf("got %v, want invalid input", err)
	}
}

func TestAssembleRejectsAbsurdTotalSize(t *testing.T) {
	frames := []*UploadFrame{
		{Metadata: &UploadMetadata{UserID: "user_1", Filename: "f", TotalSize: maxTotalBytes + 1, TotalChunks: 1}},
	}

	err := assembleExpectingError(t, frames)
	if !apperrors.IsInvalidInput(err) {
		t.Errorf("got %v, want invalid input", err)
	}
}
