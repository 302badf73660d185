package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/studyontology/backend/internal/storage"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Artifact is the JSON payload written by the upload endpoint and read
// back by ingestion. The SHA256 field hashes the original upload, so a
// changed document at the same path is ingested again.
type Artifact struct {
	SourceID         string `json:"source_id"`
	SourceName       string `json:"source_name"`
	OriginalFilename string `json:"original_filename"`
	ExtractedText    string `json:"extracted_text"`
	SHA256           string `json:"artifact_sha256"`
	CreatedAt        string `json:"created_at"`
}

// Parse decodes an artifact payload and checks the fields ingestion
// depends on.
func Parse(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("artifact JSON is invalid: %w", err)
	}
	if a.SourceID == "" {
		return nil, fmt.Errorf("artifact is missing source_id")
	}
	if a.SourceName == "" {
		return nil, fmt.Errorf("artifact is missing source_name")
	}
	if a.SHA256 == "" {
		return nil, fmt.Errorf("artifact is missing artifact_sha256")
	}
	return &a, nil
}

// HashBytes returns the lowercase hex SHA-256 of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Reader loads artifact payloads by path or key.
type Reader interface {
	ReadArtifact(ctx context.Context, path string) ([]byte, error)
}

// LocalReader reads artifacts from the upload root on the local
// filesystem. Paths are validated against the root before any file
// access.
type LocalReader struct {
	root string
}

func NewLocalReader(root string) *LocalReader {
	return &LocalReader{root: root}
}

func (r *LocalReader) ReadArtifact(ctx context.Context, path string) ([]byte, error) {
	resolved, err := ValidatePath(r.root, path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	return data, nil
}

// S3Reader reads artifacts from the configured bucket, treating the
// artifact path as an object key.
type S3Reader struct {
	client *s3.Client
}

func NewS3Reader(client *s3.Client) *S3Reader {
	return &S3Reader{client: client}
}

func (r *S3Reader) ReadArtifact(ctx context.Context, path string) ([]byte, error) {
	return storage.GetFile(ctx, r.client, path)
}
