// Package blobstore keeps uploaded product images and serves them back by id.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned by Open for unknown ids.
var ErrNotFound = errors.New("blob not found")

// Object is an opened blob. Callers must close Body.
type Object struct {
	Body        io.ReadCloser
	Name        string
	ContentType string
	Size        int64
}

type Store interface {
	// Put stores the bytes under path and returns the public URL.
	Put(ctx context.Context, path, contentType string, body io.Reader) (string, error)
	Open(ctx context.Context, id string) (*Object, error)
}

type gridFSStore struct {
	bucket  *gridfs.Bucket
	baseURL string
}

// NewGridFS stores blobs in the "images" GridFS bucket of db. URLs are
// built as baseURL/media/{id}.
func NewGridFS(db *mongo.Database, baseURL string) (Store, error) {
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName("images"))
	if err != nil {
		return nil, fmt.Errorf("failed to open gridfs bucket: %w", err)
	}
	return &gridFSStore{bucket: bucket, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func deadline(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Time{}
}

func (s *gridFSStore) Put(ctx context.Context, path, contentType string, body io.Reader) (string, error) {
	if err := s.bucket.SetWriteDeadline(deadline(ctx)); err != nil {
		return "", err
	}
	opts := options.GridFSUpload().SetMetadata(bson.D{{Key: "contentType", Value: contentType}})
	id, err := s.bucket.UploadFromStream(path, body, opts)
	if err != nil {
		return "", fmt.Errorf("failed to upload blob: %w", err)
	}
	return MediaURL(s.baseURL, id.Hex()), nil
}

func (s *gridFSStore) Open(ctx context.Context, id string) (*Object, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	if err := s.bucket.SetReadDeadline(deadline(ctx)); err != nil {
		return nil, err
	}
	stream, err := s.bucket.OpenDownloadStream(oid)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}

	file := stream.GetFile()
	var meta struct {
		ContentType string `bson:"contentType"`
	}
	if len(file.Metadata) > 0 {
		_ = bson.Unmarshal(file.Metadata, &meta)
	}
	return &Object{Body: stream, Name: file.Name, ContentType: meta.ContentType, Size: file.Length}, nil
}

// MediaURL is the public address of blob id.
func MediaURL(baseURL, id string) string {
	return strings.TrimRight(baseURL, "/") + "/media/" + id
}
