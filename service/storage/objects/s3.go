// Package objects hosts media bytes on S3 compatible object storage.
package objects

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"LinkHub/global/config"
	"LinkHub/service/storage"
	"LinkHub/tools/errs"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// putObjectAPI is the slice of the S3 client the store needs.
type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 uploads objects into one bucket and returns their public URL.
type S3 struct {
	api     putObjectAPI
	bucket  string
	baseURL string
}

var _ storage.ObjectStore = (*S3)(nil)

func New(api putObjectAPI, bucket, region, publicBaseURL string) (*S3, error) {
	if api == nil {
		return nil, errors.New("objects: api must not be nil")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("objects: bucket must not be empty")
	}
	base := strings.TrimRight(publicBaseURL, "/")
	if base == "" {
		base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
	}
	return &S3{api: api, bucket: bucket, baseURL: base}, nil
}

// NewFromConfig builds the S3 client from the default AWS credential chain.
func NewFromConfig(ctx context.Context, conf config.ObjectsConfig) (*S3, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(conf.Region))
	if err != nil {
		return nil, errs.WrapMsg(err, "load aws config")
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if conf.Endpoint != "" {
			o.BaseEndpoint = aws.String(conf.Endpoint)
		}
		o.UsePathStyle = conf.UsePathStyle
	})
	return New(client, conf.Bucket, conf.Region, conf.PublicBaseURL)
}

func (s *S3) Upload(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", errs.ErrUpload.WrapMsg("put object", "key", key, "err", err)
	}
	return s.baseURL + "/" + key, nil
}
