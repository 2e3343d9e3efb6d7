/*
Copyright © 2026 the GUESS authors.
This file is part of GUESS.

GUESS is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

GUESS is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with GUESS.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package checkpoint stores simulation state in blob storage. Each rank
// of a simulation writes its state to the key "<directory>/<rank>.state".
package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/guess"
	"github.com/spatialmodel/guess/internal/hash"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/gcsblob"
	"gocloud.dev/blob/memblob"
	"gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"
	"gocloud.dev/gcp"
)

// ErrNotFound is returned when there is no checkpoint for a rank.
var ErrNotFound = errors.New("checkpoint: not found")

// digestKey is the blob metadata key holding the hash of the state.
const digestKey = "digest"

// Store reads and writes checkpoints.
type Store struct {
	bucket *blob.Bucket
	dir    string

	// Log receives retry warnings and save notices. It may be nil.
	Log logrus.FieldLogger

	// MaxRetries is the number of times a failed write is retried.
	MaxRetries uint64
}

// Open returns the store at the given URL, which must be in the format
// 'provider://bucket/directory'. The accepted providers are "file" for the
// local filesystem, "mem" for memory (e.g., for testing), "gs" for Google
// Cloud Storage and "s3" for AWS S3. For "file" URLs the whole path is the
// directory, which is created if it does not exist.
func Open(ctx context.Context, storeURL string) (*Store, error) {
	u, err := url.Parse(storeURL)
	if err != nil {
		return nil, fmt.Errorf("checkpoint.Open: %v", err)
	}
	dir := strings.Trim(u.Path, "/")
	var bucket *blob.Bucket
	switch u.Scheme {
	case "file":
		root := filepath.FromSlash(u.Host + u.Path)
		if root == "" {
			root = "."
		}
		if err = os.MkdirAll(root, os.ModePerm); err != nil {
			return nil, fmt.Errorf("checkpoint.Open: %v", err)
		}
		bucket, err = fileblob.OpenBucket(root, nil)
		dir = ""
	case "mem":
		bucket = memblob.OpenBucket(nil)
		dir = strings.Trim(path.Join(u.Host, u.Path), "/")
	case "gs":
		bucket, err = gsBucket(ctx, u.Host)
	case "s3":
		bucket, err = s3Bucket(ctx, u.Host)
	default:
		return nil, fmt.Errorf("checkpoint.Open: invalid provider %q", u.Scheme)
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint.Open: %v", err)
	}
	return newStore(bucket, dir), nil
}

func newStore(bucket *blob.Bucket, dir string) *Store {
	return &Store{bucket: bucket, dir: dir, MaxRetries: 5}
}

func gsBucket(ctx context.Context, name string) (*blob.Bucket, error) {
	// See here for information on credentials:
	// https://cloud.google.com/docs/authentication/getting-started
	creds, err := gcp.DefaultCredentials(ctx)
	if err != nil {
		return nil, err
	}
	c, err := gcp.NewHTTPClient(gcp.DefaultTransport(), gcp.CredentialsTokenSource(creds))
	if err != nil {
		return nil, err
	}
	return gcsblob.OpenBucket(ctx, c, name, nil)
}

// s3Bucket opens an s3 storage bucket. It assumes the following
// environment variables are set: AWS_REGION, AWS_ACCESS_KEY_ID, and
// AWS_SECRET_ACCESS_KEY.
func s3Bucket(ctx context.Context, name string) (*blob.Bucket, error) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-2"
	}
	c := &aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewEnvCredentials(),
	}
	s, err := session.NewSession(c)
	if err != nil {
		return nil, err
	}
	return s3blob.OpenBucket(ctx, s, name, nil)
}

// Close closes the underlying bucket.
func (s *Store) Close() error { return s.bucket.Close() }

// Key returns the blob key of the checkpoint of the given rank.
func (s *Store) Key(rank int) string {
	return path.Join(s.dir, fmt.Sprintf("%d.state", rank))
}

func (s *Store) log() logrus.FieldLogger {
	if s.Log == nil {
		l := logrus.New()
		l.Out = ioutil.Discard
		return l
	}
	return s.Log
}

func (s *Store) retry(ctx context.Context, op func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.MaxRetries), ctx)
	return backoff.RetryNotify(op, b, func(err error, d time.Duration) {
		s.log().WithError(err).Warnf("checkpoint: retrying in %v", d)
	})
}

// Write stores data as the checkpoint of the given rank, replacing any
// previous one. Failed writes are retried with exponential backoff.
func (s *Store) Write(ctx context.Context, rank int, data []byte) error {
	key := s.Key(rank)
	opts := &blob.WriterOptions{
		ContentType: "application/octet-stream",
		Metadata:    map[string]string{digestKey: hash.Hash(data)},
	}
	err := s.retry(ctx, func() error {
		return s.bucket.WriteAll(ctx, key, data, opts)
	})
	if err != nil {
		return fmt.Errorf("checkpoint: writing %s: %v", key, err)
	}
	return nil
}

// Read returns the checkpoint of the given rank. It returns an error
// wrapping ErrNotFound if there is none, and an error if the data does not
// match the digest stored with it.
func (s *Store) Read(ctx context.Context, rank int) ([]byte, error) {
	key := s.Key(rank)
	var data []byte
	var attrs *blob.Attributes
	notFound := false
	err := s.retry(ctx, func() error {
		var err error
		attrs, err = s.bucket.Attributes(ctx, key)
		if gcerrors.Code(err) == gcerrors.NotFound {
			notFound = true
			return nil
		} else if err != nil {
			return err
		}
		data, err = s.bucket.ReadAll(ctx, key)
		return err
	})
	if notFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint: reading %s: %v", key, err)
	}
	if want, ok := attrs.Metadata[digestKey]; ok {
		if have := hash.Hash(data); have != want {
			return nil, fmt.Errorf("checkpoint: %s is corrupt: digest %s, want %s", key, have, want)
		}
	}
	return data, nil
}

// Exists returns whether there is a checkpoint for the given rank.
func (s *Store) Exists(ctx context.Context, rank int) (bool, error) {
	return s.bucket.Exists(ctx, s.Key(rank))
}

// Save returns a function that writes the model state to the store at the
// end of every interval years and at the end of the simulation. It must
// run after the day has been completed, i.e. after guess.AdvanceDay.
func Save(ctx context.Context, s *Store, rank, interval int) guess.DomainManipulator {
	if interval < 1 {
		interval = 1
	}
	return func(d *guess.GUESS) error {
		if !d.YearBoundary() {
			return nil
		}
		if (d.Year-d.FirstYear)%interval != 0 && !d.Done {
			return nil
		}
		var buf bytes.Buffer
		if err := guess.Save(&buf)(d); err != nil {
			return err
		}
		if err := s.Write(ctx, rank, buf.Bytes()); err != nil {
			return err
		}
		d.Metrics.AddCheckpoint()
		s.log().WithFields(logrus.Fields{
			"key":   s.Key(rank),
			"year":  d.Year,
			"bytes": buf.Len(),
		}).Info("checkpoint saved")
		return nil
	}
}

// Restore returns a function that loads the model state of the given rank
// from the store. d.PFTs must be set before it runs.
func Restore(ctx context.Context, s *Store, rank int) guess.DomainManipulator {
	return func(d *guess.GUESS) error {
		data, err := s.Read(ctx, rank)
		if err != nil {
			return err
		}
		if err := guess.Load(bytes.NewReader(data))(d); err != nil {
			return err
		}
		s.log().WithFields(logrus.Fields{
			"key":  s.Key(rank),
			"year": d.Year,
			"day":  d.Day,
		}).Info("checkpoint restored")
		return nil
	}
}
