package store

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/couchcryptid/storm-vision-service/internal/domain"
)

// chunkSize keeps each document under Firestore's 1 MiB limit.
const chunkSize = 900 << 10

// Firestore stores blobs in a collection, one head document per key with the
// payload split across a "chunks" subcollection.
type Firestore struct {
	client     *firestore.Client
	collection string
}

// FirestoreConfig configures the Firestore backend. Credentials is the
// base64-encoded service account JSON; when empty, application default
// credentials (or FIRESTORE_EMULATOR_HOST) are used.
type FirestoreConfig struct {
	ProjectID   string
	Collection  string
	Credentials string
}

// NewFirestore initializes a Firebase app and opens its Firestore client.
func NewFirestore(ctx context.Context, cfg FirestoreConfig) (*Firestore, error) {
	opts, err := clientOptions(cfg.Credentials)
	if err != nil {
		return nil, err
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("open firestore: %w", err)
	}
	return &Firestore{client: client, collection: cfg.Collection}, nil
}

func clientOptions(encoded string) ([]option.ClientOption, error) {
	if encoded == "" {
		return nil, nil
	}
	creds, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode firestore credentials: %w", err)
	}
	return []option.ClientOption{option.WithCredentialsJSON(creds)}, nil
}

// Put writes the chunks first and the head document last, so a reader
// never sees a head that points at chunks not yet written.
func (f *Firestore) Put(ctx context.Context, key string, blob []byte) error {
	head := f.client.Collection(f.collection).Doc(key)
	chunks := splitChunks(blob, chunkSize)
	for i, c := range chunks {
		if _, err := head.Collection("chunks").Doc(strconv.Itoa(i)).Set(ctx, map[string]any{"data": c}); err != nil {
			return fmt.Errorf("write %s chunk %d: %w", key, i, err)
		}
	}
	_, err := head.Set(ctx, map[string]any{
		"chunks":    len(chunks),
		"size":      len(blob),
		"updatedAt": time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (f *Firestore) Get(ctx context.Context, key string) ([]byte, error) {
	head := f.client.Collection(f.collection).Doc(key)
	doc, err := head.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}

	var meta struct {
		Chunks int `firestore:"chunks"`
		Size   int `firestore:"size"`
	}
	if err := doc.DataTo(&meta); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}

	refs := make([]*firestore.DocumentRef, meta.Chunks)
	for i := range refs {
		refs[i] = head.Collection("chunks").Doc(strconv.Itoa(i))
	}
	snaps, err := f.client.GetAll(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("read %s chunks: %w", key, err)
	}

	blob := make([]byte, 0, meta.Size)
	for i, s := range snaps {
		if !s.Exists() {
			return nil, fmt.Errorf("read %s: chunk %d missing", key, i)
		}
		var c struct {
			Data []byte `firestore:"data"`
		}
		if err := s.DataTo(&c); err != nil {
			return nil, fmt.Errorf("decode %s chunk %d: %w", key, i, err)
		}
		blob = append(blob, c.Data...)
	}
	return blob, nil
}

// Close releases the Firestore client.
func (f *Firestore) Close() error {
	return f.client.Close()
}

// splitChunks always returns at least one chunk so an empty blob round-trips.
func splitChunks(blob []byte, size int) [][]byte {
	if len(blob) == 0 {
		return [][]byte{{}}
	}
	var out [][]byte
	for len(blob) > size {
		out = append(out, blob[:size])
		blob = blob[size:]
	}
	return append(out, blob)
}
