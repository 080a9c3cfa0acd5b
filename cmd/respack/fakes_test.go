package main

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/keithlinneman/respack/internal/store"
)

// memAWS is an in-memory bucket and parameter store shared by every
// command run in a test.
type memAWS struct {
	mu      sync.Mutex
	objects map[string][]byte
	meta    map[string]map[string]string
	params  map[string]string
}

func newMemAWS() *memAWS {
	return &memAWS{
		objects: make(map[string][]byte),
		meta:    make(map[string]map[string]string),
		params:  make(map[string]string),
	}
}

func (m *memAWS) hook(o *store.Options) {
	o.S3Client = memS3{m}
	o.SSMClient = memSSM{m}
}

type memS3 struct{ m *memAWS }

func (f memS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.m.objects[key] = data
	f.m.meta[key] = in.Metadata
	return &s3.PutObjectOutput{}, nil
}

func (f memS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	data, ok := f.m.objects[key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data)), Metadata: f.m.meta[key]}, nil
}

func (f memS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	data, ok := f.m.objects[key]
	if !ok {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data))), Metadata: f.m.meta[key]}, nil
}

type memSSM struct{ m *memAWS }

func (f memSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	v, ok := f.m.params[aws.ToString(in.Name)]
	if !ok {
		return nil, &ssmtypes.ParameterNotFound{}
	}
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Value: aws.String(v)}}, nil
}

func (f memSSM) PutParameter(_ context.Context, in *ssm.PutParameterInput, _ ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	f.m.params[aws.ToString(in.Name)] = aws.ToString(in.Value)
	return &ssm.PutParameterOutput{}, nil
}
