package dynamodb

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/auroilion/roilion/ratelimit"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/pkg/errors"
)

var _ ratelimit.Store = &DynamoDB{}

// maxAttempts bounds the update / reset race between concurrent callers on a closed window
const maxAttempts = 5

// DynamoDB implements the bucket store on a table keyed by bucket_key. Buckets carry a
// ttl attribute (unix seconds) so the table's TTL setting removes them.
type DynamoDB struct {
	dynDB     dynamodbiface.DynamoDBAPI
	tableName string
}

type bucketItem struct {
	Key         string `dynamodbav:"bucket_key"`
	Hits        int    `dynamodbav:"hits"`
	WindowStart int64  `dynamodbav:"window_start"`
	TTL         int64  `dynamodbav:"ttl"`
}

// GetNewDynamoDB gets a new dynamodb store using the default aws session
func GetNewDynamoDB(table string) *DynamoDB {
	awsSession := session.Must(session.NewSession())

	return &DynamoDB{
		dynDB:     dynamodb.New(awsSession),
		tableName: table,
	}
}

// Increment counts a hit for key. It first adds to a live window and, if there is none,
// replaces the item with a fresh window.
func (d *DynamoDB) Increment(ctx context.Context, key string, window time.Duration, now time.Time) (ratelimit.Bucket, error) {
	cutoff := now.Add(-window).UnixMilli()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		b, err := d.addHit(ctx, key, cutoff)
		if err == nil {
			return b, nil
		}
		if !isConditionFailed(err) {
			return ratelimit.Bucket{}, errors.Wrap(err, "DynamoDB: failed to add hit")
		}

		b, err = d.startWindow(ctx, key, window, now, cutoff)
		if err == nil {
			return b, nil
		}
		if !isConditionFailed(err) {
			return ratelimit.Bucket{}, errors.Wrap(err, "DynamoDB: failed to start window")
		}
	}

	return ratelimit.Bucket{}, errors.Errorf("DynamoDB: gave up on bucket %v after %v attempts", key, maxAttempts)
}

func (d *DynamoDB) addHit(ctx context.Context, key string, cutoff int64) (ratelimit.Bucket, error) {
	o, err := d.dynDB.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]*dynamodb.AttributeValue{
			"bucket_key": {S: aws.String(key)},
		},
		UpdateExpression:    aws.String("ADD #H :one"),
		ConditionExpression: aws.String("#W > :cutoff"),
		ExpressionAttributeNames: map[string]*string{
			"#H": aws.String("hits"),
			"#W": aws.String("window_start"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":one":    {N: aws.String("1")},
			":cutoff": {N: aws.String(strconv.FormatInt(cutoff, 10))},
		},
		ReturnValues: aws.String(dynamodb.ReturnValueAllNew),
	})
	if err != nil {
		return ratelimit.Bucket{}, err
	}

	var item bucketItem
	if err := dynamodbattribute.UnmarshalMap(o.Attributes, &item); err != nil {
		return ratelimit.Bucket{}, errors.Wrap(err, "DynamoDB: failed to unmarshal bucket")
	}

	return item.bucket(), nil
}

func (d *DynamoDB) startWindow(ctx context.Context, key string, window time.Duration, now time.Time, cutoff int64) (ratelimit.Bucket, error) {
	item := bucketItem{
		Key:         key,
		Hits:        1,
		WindowStart: now.UnixMilli(),
		TTL:         now.Add(window).Unix() + 1,
	}

	av, err := dynamodbattribute.MarshalMap(item)
	if err != nil {
		return ratelimit.Bucket{}, errors.Wrap(err, "DynamoDB: failed to marshal bucket")
	}

	_, err = d.dynDB.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(#K) OR #W <= :cutoff"),
		ExpressionAttributeNames: map[string]*string{
			"#K": aws.String("bucket_key"),
			"#W": aws.String("window_start"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":cutoff": {N: aws.String(strconv.FormatInt(cutoff, 10))},
		},
	})
	if err != nil {
		return ratelimit.Bucket{}, err
	}

	return item.bucket(), nil
}

func (i bucketItem) bucket() ratelimit.Bucket {
	return ratelimit.Bucket{
		Key:         i.Key,
		Count:       i.Hits,
		WindowStart: time.UnixMilli(i.WindowStart),
	}
}

func isConditionFailed(err error) bool {
	aerr, ok := err.(awserr.Error)
	return ok && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException
}

// createTable creates the bucket table for testing
func (d *DynamoDB) createTable() error {
	_, err := d.dynDB.CreateTable(&dynamodb.CreateTableInput{
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{
				AttributeName: aws.String("bucket_key"),
				AttributeType: aws.String("S"),
			},
		},
		KeySchema: []*dynamodb.KeySchemaElement{
			{
				AttributeName: aws.String("bucket_key"),
				KeyType:       aws.String("HASH"),
			},
		},
		ProvisionedThroughput: &dynamodb.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(5),
			WriteCapacityUnits: aws.Int64(5),
		},
		TableName: aws.String(d.tableName),
	})

	if err != nil {
		if !strings.Contains(err.Error(), dynamodb.ErrCodeResourceInUseException) {
			return err
		}
	}

	return nil
}
