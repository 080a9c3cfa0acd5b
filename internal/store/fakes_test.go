package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/keithlinneman/respack/internal/log"
)

const (
	testBucket = "packs-bucket"
	testPrefix = "respack/packs"
	testParam  = "/respack/current"
)

type object struct {
	data []byte
	meta map[string]string
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]object
	getErr  error
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: make(map[string]object)} }

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = object{data: data, meta: in.Metadata}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	o, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{Message: aws.String("no such key")}
	}
	return &s3.GetObjectOutput{
		Body:     io.NopCloser(bytes.NewReader(o.data)),
		Metadata: o.meta,
	}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(o.data))), Metadata: o.meta}, nil
}

// corrupt flips a byte in a stored object.
func (f *fakeS3) corrupt(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.objects[testBucket+"/"+key]
	o.data = append([]byte(nil), o.data...)
	o.data[len(o.data)-1] ^= 0xff
	f.objects[testBucket+"/"+key] = o
}

type fakeSSM struct {
	mu     sync.Mutex
	params map[string]string
	getErr error
}

func newFakeSSM() *fakeSSM { return &fakeSSM{params: make(map[string]string)} }

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	v, ok := f.params[aws.ToString(in.Name)]
	if !ok {
		return nil, &ssmtypes.ParameterNotFound{}
	}
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Value: aws.String(v)}}, nil
}

func (f *fakeSSM) PutParameter(_ context.Context, in *ssm.PutParameterInput, _ ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	if !aws.ToBool(in.Overwrite) {
		return nil, errors.New("fake: publish must overwrite")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.params[aws.ToString(in.Name)] = aws.ToString(in.Value)
	return &ssm.PutParameterOutput{}, nil
}

func (f *fakeSSM) set(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.params[name] = value
}

func (f *fakeSSM) failWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErr = err
}

func newTestStore(t *testing.T) (*Store, *fakeS3, *fakeSSM) {
	t.Helper()
	s3f, ssmf := newFakeS3(), newFakeSSM()
	s, err := New(context.Background(), Options{
		Logger:    log.Nop(),
		Bucket:    testBucket,
		Prefix:    testPrefix,
		SSMParam:  testParam,
		S3Client:  s3f,
		SSMClient: ssmf,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, s3f, ssmf
}
