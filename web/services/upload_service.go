package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"strings"

	apperrors "rag-server/errors"
	"rag-server/web/types"

	"go.uber.org/zap"
)

const (
	maxChunkBytes = 10 << 20 // per data frame
	maxTotalBytes = 1 << 30  // whole upload
)

// UploadMetadata is the payload of frame 0.
type UploadMetadata struct {
	UserID      string             `json:"user_id"`
	Filename    string             `json:"filename"`
	TotalSize   int64              `json:"total_size"`
	TotalChunks int                `json:"total_chunks"`
	Checksum    string             `json:"checksum,omitempty"`
	Title       string             `json:"title,omitempty"`
	Type        types.DocumentType `json:"type,omitempty"`
	Metadata    map[string]string  `json:"metadata,omitempty"`
	AutoClean   bool               `json:"auto_clean,omitempty"`
}

// UploadFrame is one newline-delimited JSON frame of the upload stream.
// Frame 0 carries Metadata; later frames carry Data with a continuous
// ChunkIndex starting at 1.
type UploadFrame struct {
	Metadata   *UploadMetadata `json:"metadata,omitempty"`
	ChunkIndex int             `json:"chunk_index"`
	Data       []byte          `json:"data,omitempty"`
	IsLast     bool            `json:"is_last,omitempty"`
}

// UploadResult is returned once the assembled file has been handed to the
// ingestion path.
type UploadResult struct {
	*AddResourceResponse
	ChunksReceived int    `json:"chunks_received"`
	Checksum       string `json:"checksum"`
}

// FrameSource yields upload frames in order, io.EOF when the stream ends.
type FrameSource interface {
	Next() (*UploadFrame, error)
}

// UploadService assembles chunked uploads and forwards the result to the
// resource service.
type UploadService struct {
	resources *ResourceService
	logger    *zap.Logger
}

func NewUploadService(resources *ResourceService, logger *zap.Logger) *UploadService {
	return &UploadService{resources: resources, logger: logger}
}

// Assemble consumes the frame stream, enforcing the protocol invariants:
// metadata first, continuous chunk indices, per-chunk and total size caps,
// and a size plus checksum check at the end. Integrity failures map to
// DATA_LOSS; protocol violations to INVALID_ARGUMENT.
func (u *UploadService) Assemble(ctx context.Context, frames FrameSource) (*UploadResult, error) {
	first, err := frames.Next()
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrInvalidInput, "empty upload stream")
	}
	if first.Metadata == nil {
		return nil, apperrors.WrapError(apperrors.ErrInvalidInput, "first frame must carry metadata")
	}
	meta := first.Metadata
	if meta.TotalSize <= 0 || meta.TotalSize > maxTotalBytes {
		return nil, apperrors.WrapErrorf(apperrors.ErrInvalidInput,
			"total_size %d out of range", meta.TotalSize)
	}

	var buf bytes.Buffer
	hasher := sha256.New()
	nextIndex := 1
	sawLast := false

	for !sawLast {
		frame, err := frames.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "read frame: %v", err)
		}

		if frame.ChunkIndex != nextIndex {
			return nil, apperrors.WrapErrorf(apperrors.ErrInvalidInput,
				"chunk_index %d, expected %d", frame.ChunkIndex, nextIndex)
		}
		if len(frame.Data) > maxChunkBytes {
			return nil, apperrors.WrapErrorf(apperrors.ErrInvalidInput,
				"chunk %d exceeds %d bytes", frame.ChunkIndex, maxChunkBytes)
		}
		if int64(buf.Len())+int64(len(frame.Data)) > maxTotalBytes {
			return nil, apperrors.WrapError(apperrors.ErrInvalidInput, "upload exceeds total size cap")
		}

		buf.Write(frame.Data)
		hasher.Write(frame.Data)
		nextIndex++
		sawLast = frame.IsLast
	}

	if int64(buf.Len()) != meta.TotalSize {
		return nil, apperrors.WrapErrorf(apperrors.ErrDataLoss,
			"received %d bytes, metadata declared %d", buf.Len(), meta.TotalSize)
	}
	digest := hex.EncodeToString(hasher.Sum(nil))
	if meta.Checksum != "" && !strings.EqualFold(meta.Checksum, digest) {
		return nil, apperrors.WrapErrorf(apperrors.ErrDataLoss,
			"checksum mismatch: got %s, declared %s", digest, meta.Checksum)
	}

	resp, err := u.resources.AddResource(ctx, &AddResourceRequest{
		UserID:      meta.UserID,
		FileContent: buf.Bytes(),
		Filename:    meta.Filename,
		Title:       meta.Title,
		Type:        meta.Type,
		Metadata:    meta.Metadata,
		AutoClean:   meta.AutoClean,
	})
	if err != nil {
		return nil, err
	}

	u.logger.Info("chunked upload assembled",
		zap.String("user_id", meta.UserID),
		zap.String("filename", meta.Filename),
		zap.Int("chunks", nextIndex-1),
		zap.Int64("bytes", meta.TotalSize))

	return &UploadResult{
		AddResourceResponse: resp,
		ChunksReceived:      nextIndex, // counts the metadata frame too
		Checksum:            digest,
	}, nil
}

// JSONFrameSource decodes newline-delimited JSON frames from a reader.
type JSONFrameSource struct {
	dec *json.Decoder
}

func NewJSONFrameSource(r io.Reader) *JSONFrameSource {
	return &JSONFrameSource{dec: json.NewDecoder(r)}
}

func (s *JSONFrameSource) Next() (*UploadFrame, error) {
	var frame UploadFrame
	if err := s.dec.Decode(&frame); err != nil {
		return nil, err
	}
	return &frame, nil
}
