package drafts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/uuid"
)

// S3Options configure the S3 backend.
type S3Options struct {
	Bucket   string
	Region   string
	Prefix   string
	Endpoint string // for S3-compatible stores such as MinIO
}

// S3Store keeps one JSON object per draft under Prefix. Owner and step are
// copied into object metadata so listing does not download payloads.
type S3Store struct {
	api    s3iface.S3API
	bucket string
	prefix string
	now    func() time.Time
}

// OpenS3 creates an S3 store from the default AWS credential chain.
func OpenS3(opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 draft store needs a bucket name")
	}
	cfg := aws.NewConfig().WithRegion(opts.Region)
	if opts.Endpoint != "" {
		cfg = cfg.WithEndpoint(opts.Endpoint).WithS3ForcePathStyle(true)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return NewS3Store(s3.New(sess), opts.Bucket, opts.Prefix), nil
}

// NewS3Store wraps an S3 client.
func NewS3Store(api s3iface.S3API, bucket, prefix string) *S3Store {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Store{api: api, bucket: bucket, prefix: prefix, now: func() time.Time { return time.Now().UTC() }}
}

func (s *S3Store) key(id uuid.UUID) *string {
	return aws.String(s.prefix + id.String() + ".json")
}

func isNotFound(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}

// metadata looks up a user metadata value; S3 returns canonicalized keys.
func metadata(m map[string]*string, key string) string {
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return aws.StringValue(v)
		}
	}
	return ""
}

func (s *S3Store) Save(ctx context.Context, d *Draft) error {
	stamp(d, s.now())
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode draft: %w", err)
	}
	_, err = s.api.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         s.key(d.ID),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
		Metadata: map[string]*string{
			"Owner":      aws.String(d.Owner),
			"Step":       aws.String(string(d.Step)),
			"Updated-At": aws.String(d.UpdatedAt.Format(time.RFC3339Nano)),
		},
	})
	if err != nil {
		return fmt.Errorf("error saving draft %s: %w", d.ID, err)
	}
	return nil
}

func (s *S3Store) Load(ctx context.Context, id uuid.UUID) (*Draft, error) {
	out, err := s.api.GetObjectWithContext(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: s.key(id)})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error loading draft %s: %w", id, err)
	}
	defer out.Body.Close()
	payload, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading draft %s: %w", id, err)
	}
	var d Draft
	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, fmt.Errorf("error decoding draft %s: %w", id, err)
	}
	return &d, nil
}

func (s *S3Store) Delete(ctx context.Context, id uuid.UUID) error {
	// DeleteObject succeeds for missing keys, so check first.
	if _, err := s.api.HeadObjectWithContext(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: s.key(id)}); err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("error deleting draft %s: %w", id, err)
	}
	_, err := s.api.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: s.key(id)})
	if err != nil {
		return fmt.Errorf("error deleting draft %s: %w", id, err)
	}
	return nil
}

// objects lists every draft object under the prefix.
func (s *S3Store) objects(ctx context.Context) ([]*s3.Object, error) {
	var objs []*s3.Object
	err := s.api.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, o := range page.Contents {
			if strings.HasSuffix(aws.StringValue(o.Key), ".json") {
				objs = append(objs, o)
			}
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("error listing drafts: %w", err)
	}
	return objs, nil
}

func (s *S3Store) List(ctx context.Context, owner string) ([]Summary, error) {
	objs, err := s.objects(ctx)
	if err != nil {
		return nil, err
	}
	out := []Summary{}
	for _, o := range objs {
		head, err := s.api.HeadObjectWithContext(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: o.Key})
		if err != nil {
			if isNotFound(err) {
				continue // deleted while listing
			}
			return nil, fmt.Errorf("error reading draft metadata: %w", err)
		}
		if metadata(head.Metadata, "Owner") != owner {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(aws.StringValue(o.Key), s.prefix), ".json")
		id, err := uuid.Parse(name)
		if err != nil {
			continue
		}
		updated, err := time.Parse(time.RFC3339Nano, metadata(head.Metadata, "Updated-At"))
		if err != nil {
			updated = aws.TimeValue(o.LastModified)
		}
		out = append(out, Summary{ID: id, Owner: owner, Step: Step(metadata(head.Metadata, "Step")), UpdatedAt: updated})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// PurgeBefore uses the object's LastModified time, which S3 sets on every
// save.
func (s *S3Store) PurgeBefore(ctx context.Context, t time.Time) (int, error) {
	objs, err := s.objects(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, o := range objs {
		if !aws.TimeValue(o.LastModified).Before(t) {
			continue
		}
		if _, err := s.api.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: o.Key}); err != nil {
			return n, fmt.Errorf("error purging draft %s: %w", aws.StringValue(o.Key), err)
		}
		n++
	}
	return n, nil
}

func (s *S3Store) Close() error { return nil }
