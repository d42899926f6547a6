package face

import (
	"context"
	"errors"
	"net/http"

	"citizen-system/config"
	"citizen-system/pkg/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"go.uber.org/zap"
)

// RekognitionAPI 用到的 Rekognition 接口子集，便于测试替换
type RekognitionAPI interface {
	IndexFaces(ctx context.Context, in *rekognition.IndexFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.IndexFacesOutput, error)
	SearchFacesByImage(ctx context.Context, in *rekognition.SearchFacesByImageInput, optFns ...func(*rekognition.Options)) (*rekognition.SearchFacesByImageOutput, error)
	CreateCollection(ctx context.Context, in *rekognition.CreateCollectionInput, optFns ...func(*rekognition.Options)) (*rekognition.CreateCollectionOutput, error)
}

// Rekognition 基于 AWS Rekognition 的人脸服务
type Rekognition struct {
	api          RekognitionAPI
	http         *http.Client
	collectionID string
	threshold    float32
	maxBytes     int
}

// NewRekognition 使用默认凭证链创建客户端
func NewRekognition(ctx context.Context, cfg config.FaceConfig, httpClient *http.Client) (*Rekognition, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, err
	}
	return NewRekognitionWithAPI(rekognition.NewFromConfig(awsCfg), cfg, httpClient), nil
}

// NewRekognitionWithAPI 使用给定的 API 实现创建客户端
func NewRekognitionWithAPI(api RekognitionAPI, cfg config.FaceConfig, httpClient *http.Client) *Rekognition {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = 95
	}
	return &Rekognition{
		api:          api,
		http:         httpClient,
		collectionID: cfg.CollectionID,
		threshold:    threshold,
		maxBytes:     cfg.MaxImageBytes,
	}
}

func (r *Rekognition) load(ctx context.Context, imageURL string) (*types.Image, error) {
	raw, err := Fetch(ctx, r.http, imageURL)
	if err != nil {
		return nil, err
	}
	data, err := Normalize(raw, r.maxBytes)
	if err != nil {
		return nil, err
	}
	return &types.Image{Bytes: data}, nil
}

// IndexFace 将人脸写入人脸库，ExternalImageId 为档案ID。
// 人脸库不存在时自动创建并重试一次。
func (r *Rekognition) IndexFace(ctx context.Context, imageURL, subjectID string) (string, error) {
	img, err := r.load(ctx, imageURL)
	if err != nil {
		return "", err
	}
	in := &rekognition.IndexFacesInput{
		CollectionId:    aws.String(r.collectionID),
		Image:           img,
		ExternalImageId: aws.String(subjectID),
		MaxFaces:        aws.Int32(1),
		QualityFilter:   types.QualityFilterAuto,
	}

	out, err := r.api.IndexFaces(ctx, in)
	if isCollectionMissing(err) {
		if err := r.ensureCollection(ctx); err != nil {
			return "", err
		}
		out, err = r.api.IndexFaces(ctx, in)
	}
	if err != nil {
		return "", &VendorError{Op: "IndexFaces", Err: err}
	}
	if len(out.FaceRecords) == 0 || out.FaceRecords[0].Face == nil {
		return "", ErrNoFace
	}
	return aws.ToString(out.FaceRecords[0].Face.FaceId), nil
}

// SearchSimilar 在人脸库中查找相似人脸，命中任意一个即视为重复。
// 人脸库不存在说明还没有任何人脸，不算重复。
func (r *Rekognition) SearchSimilar(ctx context.Context, imageURL string) (Match, error) {
	img, err := r.load(ctx, imageURL)
	if err != nil {
		return Match{}, err
	}
	out, err := r.api.SearchFacesByImage(ctx, &rekognition.SearchFacesByImageInput{
		CollectionId:       aws.String(r.collectionID),
		Image:              img,
		FaceMatchThreshold: aws.Float32(r.threshold),
		MaxFaces:           aws.Int32(1),
	})
	if isCollectionMissing(err) {
		return Match{}, nil
	}
	if err != nil {
		var invalid *types.InvalidParameterException
		if errors.As(err, &invalid) {
			return Match{}, ErrNoFace
		}
		return Match{}, &VendorError{Op: "SearchFacesByImage", Err: err}
	}
	if len(out.FaceMatches) == 0 || out.FaceMatches[0].Face == nil {
		return Match{}, nil
	}
	m := out.FaceMatches[0]
	return Match{
		Duplicate:  true,
		FaceID:     aws.ToString(m.Face.FaceId),
		SubjectID:  aws.ToString(m.Face.ExternalImageId),
		Similarity: aws.ToFloat32(m.Similarity),
	}, nil
}

func (r *Rekognition) ensureCollection(ctx context.Context) error {
	_, err := r.api.CreateCollection(ctx, &rekognition.CreateCollectionInput{
		CollectionId: aws.String(r.collectionID),
	})
	if err != nil {
		var exists *types.ResourceAlreadyExistsException
		if errors.As(err, &exists) {
			return nil
		}
		return &VendorError{Op: "CreateCollection", Err: err}
	}
	logger.Info("人脸集合已创建", zap.String("collection", r.collectionID))
	return nil
}

func isCollectionMissing(err error) bool {
	var notFound *types.ResourceNotFoundException
	return errors.As(err, &notFound)
}
