// Package store keeps packs in S3 and tracks the published one in an SSM
// parameter.
//
// Each pack is one object at s3://{bucket}/{prefix}/{name}.res holding the
// Serialize output. Publishing writes the pack name to the parameter;
// servers started with --watch poll it and hot-swap.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/keithlinneman/respack/internal/log"
	"github.com/keithlinneman/respack/internal/xerrors"
	"github.com/keithlinneman/respack/resource"
)

// MaxPackSize bounds how much of an object Pull reads into memory.
const MaxPackSize = 512 << 20

const (
	contentType = "application/vnd.respack"
	metaSHA256  = "sha256"
	metaEntries = "entries"
)

var (
	// ErrNotFound means the pack object or the published pointer does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrChecksum means the downloaded bytes do not match the digest recorded at push.
	ErrChecksum = errors.New("store: checksum mismatch")
)

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// S3API is the subset of *s3.Client the store calls.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// SSMAPI is the subset of *ssm.Client the store calls.
type SSMAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, in *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// OpObserver receives one call per remote operation.
type OpObserver interface {
	ObserveStoreOp(op string, d time.Duration, err error)
}

type Options struct {
	Logger log.Logger

	Bucket   string
	Prefix   string
	SSMParam string

	// AWS config (default chain if nil); ignored when both clients are set
	AWSConfig *aws.Config
	S3Client  S3API
	SSMClient SSMAPI

	Metrics OpObserver
}

// Ref identifies a stored pack.
type Ref struct {
	Name    string
	Key     string
	SHA256  string
	Size    int64
	Entries int
}

type Store struct {
	opts   Options
	s3     S3API
	ssm    SSMAPI
	logger log.Logger
}

// New builds a Store. AWS clients are created from the default credential
// chain unless injected.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Bucket == "" {
		return nil, xerrors.New("store: bucket is required")
	}
	if opts.SSMParam == "" {
		return nil, xerrors.New("store: ssm parameter is required")
	}
	opts.Prefix = strings.Trim(opts.Prefix, "/")
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}

	s := &Store{opts: opts, s3: opts.S3Client, ssm: opts.SSMClient, logger: opts.Logger}
	if s.s3 != nil && s.ssm != nil {
		return s, nil
	}

	var awsCfg aws.Config
	if opts.AWSConfig != nil {
		awsCfg = *opts.AWSConfig
	} else {
		var err error
		awsCfg, err = config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, xerrors.Wrap(err, "load AWS config")
		}
	}
	if s.s3 == nil {
		s.s3 = s3.NewFromConfig(awsCfg)
	}
	if s.ssm == nil {
		s.ssm = ssm.NewFromConfig(awsCfg)
	}
	return s, nil
}

// Key returns the object key for a pack name.
func (s *Store) Key(name string) string {
	if s.opts.Prefix != "" {
		return s.opts.Prefix + "/" + name + ".res"
	}
	return name + ".res"
}

func checkName(name string) error {
	if !validName.MatchString(name) {
		return xerrors.Newf("store: invalid pack name %q (letters, digits, '.', '_', '-'; must start alphanumeric)", name)
	}
	return nil
}

func (s *Store) observe(op string, start time.Time, err error) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.ObserveStoreOp(op, time.Since(start), err)
	}
}

// Push serializes c and uploads it under name, replacing any existing
// object. The digest and entry count travel as object metadata.
func (s *Store) Push(ctx context.Context, name string, c *resource.Container) (ref Ref, err error) {
	if err := checkName(name); err != nil {
		return Ref{}, err
	}
	start := time.Now()
	defer func() { s.observe("push", start, err) }()

	data, err := c.Serialize()
	if err != nil {
		return Ref{}, err
	}
	ref = Ref{
		Name:    name,
		Key:     s.Key(name),
		SHA256:  SHA256Hex(data),
		Size:    int64(len(data)),
		Entries: c.Len(),
	}

	_, err = s.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.opts.Bucket),
		Key:           aws.String(ref.Key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(ref.Size),
		ContentType:   aws.String(contentType),
		Metadata: map[string]string{
			metaSHA256:  ref.SHA256,
			metaEntries: strconv.Itoa(ref.Entries),
		},
	})
	if err != nil {
		return Ref{}, xerrors.Wrapf(err, "put s3://%s/%s", s.opts.Bucket, ref.Key)
	}

	s.logger.Info(ctx, "pushed pack",
		"name", name,
		"key", ref.Key,
		"bytes", ref.Size,
		"sha256", ref.SHA256,
	)
	return ref, nil
}

// Pull downloads and decodes the pack stored under name. When the object
// carries a digest the bytes are checked against it first.
func (s *Store) Pull(ctx context.Context, name string) (c *resource.Container, ref Ref, err error) {
	if err := checkName(name); err != nil {
		return nil, Ref{}, err
	}
	start := time.Now()
	defer func() { s.observe("pull", start, err) }()

	ref = Ref{Name: name, Key: s.Key(name)}
	out, err := s.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ref, xerrors.Wrapf(errors.Join(ErrNotFound, err), "pack %q", name)
		}
		return nil, ref, xerrors.Wrapf(err, "get s3://%s/%s", s.opts.Bucket, ref.Key)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, MaxPackSize+1))
	if err != nil {
		return nil, ref, xerrors.Wrapf(err, "read s3://%s/%s", s.opts.Bucket, ref.Key)
	}
	if len(data) > MaxPackSize {
		return nil, ref, xerrors.Newf("pack %q exceeds %d bytes", name, MaxPackSize)
	}
	ref.Size = int64(len(data))
	ref.SHA256 = SHA256Hex(data)

	if want := out.Metadata[metaSHA256]; want != "" && !HashEqual(want, ref.SHA256) {
		return nil, ref, xerrors.Wrapf(ErrChecksum, "pack %q: expected %s, got %s", name, want, ref.SHA256)
	}

	c, err = resource.Deserialize(data)
	if err != nil {
		return nil, ref, xerrors.Wrapf(err, "pack %q", name)
	}
	ref.Entries = c.Len()

	s.logger.Debug(ctx, "pulled pack", "name", name, "bytes", ref.Size, "sha256", ref.SHA256)
	return c, ref, nil
}

// Stat reads the stored object's metadata without downloading it. SHA256
// is empty when the object was written without a digest.
func (s *Store) Stat(ctx context.Context, name string) (ref Ref, err error) {
	if err := checkName(name); err != nil {
		return Ref{}, err
	}
	start := time.Now()
	defer func() { s.observe("stat", start, err) }()
	return s.head(ctx, name)
}

func (s *Store) head(ctx context.Context, name string) (Ref, error) {
	ref := Ref{Name: name, Key: s.Key(name)}
	out, err := s.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		var nf *s3types.NotFound
		if errors.As(err, &nf) {
			return ref, xerrors.Wrapf(errors.Join(ErrNotFound, err), "pack %q", name)
		}
		return ref, xerrors.Wrapf(err, "head s3://%s/%s", s.opts.Bucket, ref.Key)
	}
	ref.SHA256 = out.Metadata[metaSHA256]
	ref.Size = aws.ToInt64(out.ContentLength)
	if n, err := strconv.Atoi(out.Metadata[metaEntries]); err == nil {
		ref.Entries = n
	}
	return ref, nil
}

// Publish points the SSM parameter at name. The pack must already exist.
func (s *Store) Publish(ctx context.Context, name string) (err error) {
	if err := checkName(name); err != nil {
		return err
	}
	start := time.Now()
	defer func() { s.observe("publish", start, err) }()

	if _, err := s.head(ctx, name); err != nil {
		if errors.Is(err, ErrNotFound) {
			return xerrors.Wrapf(err, "publish %q: pack was never pushed", name)
		}
		return err
	}

	_, err = s.ssm.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(s.opts.SSMParam),
		Value:     aws.String(name),
		Type:      ssmtypes.ParameterTypeString,
		Overwrite: aws.Bool(true),
	})
	if err != nil {
		return xerrors.Wrapf(err, "put SSM parameter %s", s.opts.SSMParam)
	}

	s.logger.Info(ctx, "published pack", "name", name, "param", s.opts.SSMParam)
	return nil
}

// Current returns the published pack name.
func (s *Store) Current(ctx context.Context) (name string, err error) {
	start := time.Now()
	defer func() { s.observe("current", start, err) }()

	out, err := s.ssm.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(s.opts.SSMParam),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var pnf *ssmtypes.ParameterNotFound
		if errors.As(err, &pnf) {
			return "", xerrors.Wrapf(errors.Join(ErrNotFound, err), "SSM parameter %s", s.opts.SSMParam)
		}
		return "", xerrors.Wrapf(err, "get SSM parameter %s", s.opts.SSMParam)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", s.opts.SSMParam)
	}

	name = strings.TrimSpace(*out.Parameter.Value)
	if err := checkName(name); err != nil {
		return "", fmt.Errorf("SSM parameter %s: %w", s.opts.SSMParam, err)
	}
	return name, nil
}

// PullCurrent pulls whichever pack is published.
func (s *Store) PullCurrent(ctx context.Context) (*resource.Container, Ref, error) {
	name, err := s.Current(ctx)
	if err != nil {
		return nil, Ref{}, err
	}
	return s.Pull(ctx, name)
}
