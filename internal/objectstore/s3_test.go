// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package objectstore

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

type fakeS3 struct {
	objects map[string]string
	putErr  error
	lastPut *s3.PutObjectInput
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	b, _ := io.ReadAll(in.Body)
	f.objects[aws.ToString(in.Key)] = string(b)
	f.lastPut = in
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	v, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(v))}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	v, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NotFound", Message: "Not Found"}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(v))), ContentType: aws.String("video/mp4")}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3StoreWithFakeClient(t *testing.T) {
	t.Parallel()
	fake := &fakeS3{objects: map[string]string{}}
	s := NewS3StoreWithClient(fake, "bucket")
	ctx := context.Background()

	if err := s.Put(ctx, "renditions/src/720p.mp4", strings.NewReader("data"), 4, "video/mp4"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if aws.ToString(fake.lastPut.Bucket) != "bucket" || aws.ToString(fake.lastPut.ContentType) != "video/mp4" {
		t.Errorf("unexpected PutObjectInput: %+v", fake.lastPut)
	}
	if aws.ToInt64(fake.lastPut.ContentLength) != 4 {
		t.Errorf("ContentLength = %d", aws.ToInt64(fake.lastPut.ContentLength))
	}

	info, err := s.Stat(ctx, "renditions/src/720p.mp4")
	if err != nil || info.Size != 4 {
		t.Errorf("Stat = %+v, %v", info, err)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("Get missing: expected ErrObjectNotFound, got %v", err)
	}
	if _, err := s.Stat(ctx, "missing"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("Stat missing: expected ErrObjectNotFound, got %v", err)
	}
	if _, err := s.Get(ctx, "../x"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}

	fake.putErr = errors.New("boom")
	if err := s.Put(ctx, "k", strings.NewReader(""), 0, ""); err == nil || errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected wrapped put error, got %v", err)
	}
}
