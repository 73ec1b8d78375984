// Package openaistore adapts the OpenAI vector-store API to the
// vectorsync.RemoteStore interface. Uploading a document is two calls:
// create the file object, then attach it to the vector store. The
// attachment id is what the ledger records and what deletion targets.
package openaistore

import (
	"context"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/jasonlryan/mha-vectorsync/internal/vectorsync"
)

// defaultPageLimit matches the API's maximum page size for vector store
// file listings.
const defaultPageLimit = 100

// rawClient is the slice of the OpenAI client the store uses; narrowed so
// tests can fake it.
type rawClient interface {
	CreateFileBytes(ctx context.Context, request openai.FileBytesRequest) (openai.File, error)
	CreateVectorStoreFile(ctx context.Context, vectorStoreID string, request openai.VectorStoreFileRequest) (openai.VectorStoreFile, error)
	DeleteVectorStoreFile(ctx context.Context, vectorStoreID, fileID string) error
	ListVectorStoreFiles(ctx context.Context, vectorStoreID string, pagination openai.Pagination) (openai.VectorStoreFilesList, error)
}

// Client implements vectorsync.RemoteStore against one vector store.
type Client struct {
	api           rawClient
	vectorStoreID string
	pageLimit     int
}

func New(apiKey, vectorStoreID string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openaistore: %w: api key", vectorsync.ErrMissingConfig)
	}
	if vectorStoreID == "" {
		return nil, fmt.Errorf("openaistore: %w: vector store id", vectorsync.ErrMissingConfig)
	}
	return &Client{
		api:           openai.NewClient(apiKey),
		vectorStoreID: vectorStoreID,
		pageLimit:     defaultPageLimit,
	}, nil
}

// Upload reads the document from disk, creates the file object named by
// its external id, and attaches it to the vector store. Returns the
// attached file id.
func (c *Client) Upload(ctx context.Context, path, externalID string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("openaistore: read %s: %w", path, err)
	}
	file, err := c.api.CreateFileBytes(ctx, openai.FileBytesRequest{
		Name:    externalID,
		Bytes:   data,
		Purpose: openai.PurposeAssistants,
	})
	if err != nil {
		return "", fmt.Errorf("openaistore: create file %s: %w", externalID, err)
	}
	attached, err := c.api.CreateVectorStoreFile(ctx, c.vectorStoreID, openai.VectorStoreFileRequest{
		FileID: file.ID,
	})
	if err != nil {
		return "", fmt.Errorf("openaistore: attach %s: %w", externalID, err)
	}
	return attached.ID, nil
}

// Delete detaches the file from the vector store.
func (c *Client) Delete(ctx context.Context, fileID string) error {
	if err := c.api.DeleteVectorStoreFile(ctx, c.vectorStoreID, fileID); err != nil {
		return fmt.Errorf("openaistore: delete %s: %w", fileID, err)
	}
	return nil
}

// List pages through every file attached to the vector store. External ids
// are not available from the listing; the caller resolves them against the
// ledger.
func (c *Client) List(ctx context.Context) ([]vectorsync.RemoteFileRecord, error) {
	limit := c.pageLimit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	var records []vectorsync.RemoteFileRecord
	var after *string
	for {
		page, err := c.api.ListVectorStoreFiles(ctx, c.vectorStoreID, openai.Pagination{
			Limit: &limit,
			After: after,
		})
		if err != nil {
			return nil, fmt.Errorf("openaistore: list files: %w", err)
		}
		for _, file := range page.VectorStoreFiles {
			records = append(records, vectorsync.RemoteFileRecord{ID: file.ID})
		}
		if len(page.VectorStoreFiles) < limit {
			return records, nil
		}
		last := page.VectorStoreFiles[len(page.VectorStoreFiles)-1].ID
		after = &last
	}
}
