package dynamodb

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/auroilion/roilion/store"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDynamoDB runs against dynamodb local, e.g.
// docker run -p 8000:8000 amazon/dynamodb-local && DYNAMO_ENDPOINT=http://localhost:8000 go test
func TestDynamoDB(t *testing.T) {
	endpoint := os.Getenv("DYNAMO_ENDPOINT")
	if endpoint == "" {
		t.Skip("DYNAMO_ENDPOINT not set")
	}

	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String("us-west-2"),
		Endpoint:    aws.String(endpoint),
		Credentials: credentials.NewStaticCredentials("local", "local", ""),
	})
	if err != nil {
		t.Fatalf("DynamoDB: failed to setup db: %v", err)
	}

	db := &DynamoDB{
		dynDB:     dynamodb.New(sess),
		tableName: "ratelimit",
	}

	if err := db.createTable(); err != nil {
		t.Fatalf("DynamoDB: failed to setup db: %v", err)
	}

	c := store.NewFakeClock(time.Now())

	// iterate over the testing suite and call the function
	for _, f := range store.TestingFuncs {
		f(t, db, c)
	}
}

// conditionalAPI fails every conditional write, as if another caller always won the race
type conditionalAPI struct {
	dynamodbiface.DynamoDBAPI
	updates, puts int
}

func (c *conditionalAPI) UpdateItemWithContext(aws.Context, *dynamodb.UpdateItemInput, ...request.Option) (*dynamodb.UpdateItemOutput, error) {
	c.updates++
	return nil, awserr.New(dynamodb.ErrCodeConditionalCheckFailedException, "condition failed", nil)
}

func (c *conditionalAPI) PutItemWithContext(aws.Context, *dynamodb.PutItemInput, ...request.Option) (*dynamodb.PutItemOutput, error) {
	c.puts++
	return nil, awserr.New(dynamodb.ErrCodeConditionalCheckFailedException, "condition failed", nil)
}

func TestDynamoDB_GivesUpAfterMaxAttempts(t *testing.T) {
	api := &conditionalAPI{}
	db := &DynamoDB{dynDB: api, tableName: "ratelimit"}

	_, err := db.Increment(context.Background(), "k", time.Minute, time.Now())
	assert.Error(t, err)
	assert.Equal(t, maxAttempts, api.updates)
	assert.Equal(t, maxAttempts, api.puts)
}

type failingAPI struct {
	dynamodbiface.DynamoDBAPI
}

func (failingAPI) UpdateItemWithContext(aws.Context, *dynamodb.UpdateItemInput, ...request.Option) (*dynamodb.UpdateItemOutput, error) {
	return nil, errors.New("throttled")
}

func TestDynamoDB_PropagatesOtherErrors(t *testing.T) {
	db := &DynamoDB{dynDB: failingAPI{}, tableName: "ratelimit"}

	_, err := db.Increment(context.Background(), "k", time.Minute, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestIsConditionFailed(t *testing.T) {
	assert.True(t, isConditionFailed(awserr.New(dynamodb.ErrCodeConditionalCheckFailedException, "", nil)))
	assert.False(t, isConditionFailed(awserr.New(dynamodb.ErrCodeResourceNotFoundException, "", nil)))
	assert.False(t, isConditionFailed(errors.New("plain")))
}
